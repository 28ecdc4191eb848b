// Package assistant asks a generative model for reading suggestions and for book lists
// extracted from uploaded documents.
package assistant

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"schoollibrary/internal/models"
)

// MaxContentRunes bounds the document text sent for extraction
const MaxContentRunes = 8000

// UnknownAuthor is filled in when the model could not tell the author
const UnknownAuthor = "Chưa rõ"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Recommendation is one suggested title
type Recommendation struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

// RecommendResult is the model's answer to a recommendation request
type RecommendResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Model           string           `json:"model"`
}

// Candidate is a book found in an uploaded document, pending the librarian's review
type Candidate struct {
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author" validate:"required"`
	Category string `json:"category"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

// NewBook converts the candidate into a catalog entry.
// Categories the catalog does not know are filed under General Knowledge.
func (c Candidate) NewBook() models.NewBook {
	category, ok := models.ParseCategory(c.Category)
	if !ok {
		category = models.CategoryGeneralKnowledge
	}
	return models.NewBook{
		Title:    c.Title,
		Author:   c.Author,
		Category: category,
		Total:    c.Quantity,
	}
}

// ExtractResult holds the books found in a document and the model that found them
type ExtractResult struct {
	Books []Candidate `json:"books"`
	Model string      `json:"model"`
}

// Assistant runs prompts against the configured model with fallback to the others
type Assistant struct {
	settings  *Settings
	gen       Generator
	logger    *zap.Logger
	validator *validator.Validate
}

// New creates an assistant that reads its key and model from settings
func New(settings *Settings, gen Generator, logger *zap.Logger) *Assistant {
	return &Assistant{
		settings:  settings,
		gen:       gen,
		logger:    logger,
		validator: validator.New(),
	}
}

// Settings exposes the key and model store
func (a *Assistant) Settings() *Settings {
	return a.settings
}

// Recommend suggests books for a topic, given the titles already on the shelves
func (a *Assistant) Recommend(ctx context.Context, query string, titles []string) (RecommendResult, error) {
	prompt := fmt.Sprintf(`Bạn là một thủ thư trường THPT thông thái.
Người dùng đang tìm sách với từ khóa hoặc chủ đề: "%s".

Hãy gợi ý 3-5 cuốn sách phù hợp với lứa tuổi học sinh cấp 3 (15-18 tuổi).
Ưu tiên các sách có giá trị giáo dục, kỹ năng sống hoặc hỗ trợ học tập.

Danh sách sách hiện có trong thư viện (để tham khảo, nhưng hãy gợi ý cả sách mới nếu hay):
%s

Trả về kết quả dưới dạng JSON thuần túy.`, query, strings.Join(titles, ", "))

	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	model, err := a.generate(ctx, prompt, recommendSchema, &out)
	if err != nil {
		return RecommendResult{}, err
	}

	if out.Recommendations == nil {
		out.Recommendations = []Recommendation{}
	}
	return RecommendResult{Recommendations: out.Recommendations, Model: model}, nil
}

// ExtractBooks asks the model for the books listed in content.
// isTable marks spreadsheet rows whose cells are joined by " | ".
func (a *Assistant) ExtractBooks(ctx context.Context, content string, isTable bool) (ExtractResult, error) {
	source := "Đây là nội dung văn bản từ file Word/PDF."
	if isTable {
		source = `Đây là dữ liệu từ file Excel, các cột được phân cách bởi "|".`
	}

	labels := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		labels = append(labels, `"`+c.Label()+`"`)
	}

	prompt := fmt.Sprintf(`Bạn là một thủ thư chuyên nghiệp. Hãy phân tích nội dung sau và trích xuất danh sách sách.

%s

NỘI DUNG:
"""
%s
"""

Hãy trích xuất tất cả các sách có trong nội dung trên. Với mỗi cuốn sách, xác định:
1. title (tên sách) - BẮT BUỘC
2. author (tác giả) - nếu không rõ, để "%s"
3. category (thể loại) - phải là một trong: %s
4. quantity (số lượng) - nếu không rõ, để 1

Chỉ trả về JSON, không giải thích thêm.`, source, truncate(content, MaxContentRunes), UnknownAuthor, strings.Join(labels, ", "))

	var out struct {
		Books []struct {
			Title    string  `json:"title"`
			Author   string  `json:"author"`
			Category string  `json:"category"`
			Quantity float64 `json:"quantity"`
		} `json:"books"`
	}
	model, err := a.generate(ctx, prompt, extractSchema, &out)
	if err != nil {
		return ExtractResult{}, err
	}

	books := make([]Candidate, 0, len(out.Books))
	for _, b := range out.Books {
		c := Candidate{
			Title:    strings.TrimSpace(b.Title),
			Author:   strings.TrimSpace(b.Author),
			Category: strings.TrimSpace(b.Category),
			Quantity: int(math.Round(b.Quantity)),
		}
		if c.Author == "" {
			c.Author = UnknownAuthor
		}
		if c.Quantity < 1 {
			c.Quantity = 1
		}
		if err := a.validator.Struct(c); err != nil {
			a.logger.Debug("Dropping extracted book", zap.String("title", c.Title), zap.Error(err))
			continue
		}
		books = append(books, c)
	}

	return ExtractResult{Books: books, Model: model}, nil
}

// generate tries the preferred model and then the fallbacks until one returns decodable JSON.
// An invalid key stops the loop since no other model can succeed with it.
func (a *Assistant) generate(ctx context.Context, prompt string, schema *genai.Schema, out any) (string, error) {
	apiKey, err := a.settings.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if apiKey == "" {
		return "", &Error{Kind: KindMissingAPIKey}
	}
	preferred, err := a.settings.Model(ctx)
	if err != nil {
		return "", err
	}

	var lastErr error
	var lastModel string
	for _, model := range modelOrder(preferred) {
		if err := ctx.Err(); err != nil {
			return "", &Error{Kind: KindOther, Model: model, Err: err}
		}

		text, err := a.gen.Generate(ctx, apiKey, model, prompt, schema)
		if err == nil {
			if text == "" {
				text = "{}"
			}
			if err = json.UnmarshalFromString(text, out); err == nil {
				a.logger.Info("AI request served", zap.String("model", model))
				return model, nil
			}
			err = fmt.Errorf("failed to decode response: %w", err)
		}

		kind := classify(err)
		if kind == KindInvalidAPIKey {
			return "", &Error{Kind: kind, Model: model, Err: err}
		}

		a.logger.Warn("AI model failed, trying next",
			zap.String("model", model),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		lastErr = err
		lastModel = model
	}

	return "", &Error{Kind: classify(lastErr), Model: lastModel, Err: lastErr}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
