package catalog

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrOutOfStock          = errors.New("book is out of stock")
	ErrAlreadyRenewed      = errors.New("loan has already been renewed")
	ErrAlreadyReturned     = errors.New("loan has already been returned")
	ErrBorrowLimitExceeded = errors.New("student has reached the borrow limit")
	ErrInvalidBook         = errors.New("invalid book")
	ErrInvalidLoan         = errors.New("invalid loan update")
	ErrIDSpaceExhausted    = errors.New("no free book id left in category")
)
