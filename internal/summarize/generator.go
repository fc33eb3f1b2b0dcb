package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"daily-digest/internal/retry"
)

// pacingDelay is the cooperative wait between generation-service calls. The
// upstream API is rate-limited; this is pacing, not a correctness mechanism.
const pacingDelay = 5 * time.Second

const chinesePeriod = "。"

const englishSystemPrompt = "You are a helpful assistant that creates concise news summaries."

const chineseSystemPrompt = `你是一个专业的中文新闻摘要助手。你必须用中文回答，不允许输出任何英文。

要求：
1. 必须用中文生成2-3个完整的句子
2. 每个句子必须是正确的中文语法，包含完整的主谓宾结构
3. 每个句子必须以中文句号"。"结尾
4. 使用正式的中文新闻报道语言
5. 确保摘要完整表达文章的主要内容
6. 严禁输出任何英文内容`

const chineseUserPrompt = `请严格按照以下要求生成中文新闻摘要：

1. 第一句：用中文描述主要事件或核心信息，以句号结尾。
2. 第二句：用中文补充重要细节或影响，以句号结尾。
3. 如果需要第三句：用中文补充额外重要信息，以句号结尾。
4. 只输出中文，不要输出任何英文。

新闻内容：
%s`

// Stronger wording for the single retry after a failed validation.
const chineseRetrySystemPrompt = `你必须用纯中文回答！不允许输出任何英文！
1. 只能输出中文
2. 必须生成至少两个完整的中文句子
3. 每个中文句子都必须以"。"结尾
4. 使用正式的中文新闻语言
5. 禁止输出任何英文内容`

const chineseRetryUserPrompt = "请用纯中文总结这篇新闻（至少两句话，必须是中文，必须以中文句号结尾）：\n\n%s"

// Summaries is the bilingual output for one article.
type Summaries struct {
	English string
	Chinese string
}

// Generator produces an English and a validated Chinese summary per article.
// The English text is an unvalidated pass-through of the service response;
// the Chinese text is validated semantically because the service sometimes
// answers in English or truncates mid-sentence.
type Generator struct {
	client Client
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewGenerator(client Client, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}

	return &Generator{
		client: client,
		logger: logger,
		sleep:  retry.Sleep,
	}
}

// Generate returns both summaries or an error for the caller's retry loop.
// Any error means neither summary should be persisted.
func (g *Generator) Generate(ctx context.Context, content string) (Summaries, error) {
	english, err := g.client.Complete(ctx, []Message{
		{Role: "system", Content: englishSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Please provide a concise summary (around 2-3 sentences) of the following news article:\n\n%s", content)},
	}, 150, 0.7)
	if err != nil {
		return Summaries{}, fmt.Errorf("english summary: %w", err)
	}

	if err := g.sleep(ctx, pacingDelay); err != nil {
		return Summaries{}, err
	}

	chinese, err := g.client.Complete(ctx, []Message{
		{Role: "system", Content: chineseSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(chineseUserPrompt, content)},
	}, 500, 0.7)
	if err != nil {
		return Summaries{}, fmt.Errorf("chinese summary: %w", err)
	}

	if !isCompleteChineseSummary(chinese) {
		g.logger.Println("initial Chinese summary incomplete or not in Chinese, retrying once")

		if err := g.sleep(ctx, pacingDelay); err != nil {
			return Summaries{}, err
		}

		chinese, err = g.client.Complete(ctx, []Message{
			{Role: "system", Content: chineseRetrySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(chineseRetryUserPrompt, content)},
		}, 500, 0.7)
		if err != nil {
			return Summaries{}, fmt.Errorf("chinese summary retry: %w", err)
		}

		// Repair a missing trailing period rather than reject the text.
		if !strings.HasSuffix(chinese, chinesePeriod) {
			chinese += chinesePeriod
		}
	}

	if err := g.sleep(ctx, pacingDelay); err != nil {
		return Summaries{}, err
	}

	// A repaired summary with no CJK content at all is pseudo-Chinese and
	// must not reach the digest.
	if !containsCJK(chinese) {
		return Summaries{}, fmt.Errorf("chinese summary contains no Chinese characters")
	}

	return Summaries{English: english, Chinese: chinese}, nil
}

// isCompleteChineseSummary requires at least two full sentences terminated
// by the full-width period, a trailing period, 50+ characters, and at least
// one CJK code point.
func isCompleteChineseSummary(text string) bool {
	var sentences int
	for _, s := range strings.Split(text, chinesePeriod) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if sentences < 2 {
		return false
	}
	if !strings.HasSuffix(text, chinesePeriod) {
		return false
	}
	if utf8.RuneCountInString(text) < 50 {
		return false
	}
	return containsCJK(text)
}

// containsCJK reports whether text has a code point in the CJK Unified
// Ideographs range (U+4E00..U+9FFF).
func containsCJK(text string) bool {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
