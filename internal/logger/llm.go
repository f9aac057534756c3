package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu   sync.Mutex
	llmLog  *log.Logger
	llmFull bool
)

// SetLLMWriter sets the destination of advisor transcripts. nil disables them.
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

// EnableLLMPromptDump makes request transcripts include the full system prompt
// (market data included). Off by default because it is large.
func EnableLLMPromptDump(enabled bool) {
	llmMu.Lock()
	llmFull = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(kind, provider, traceID string, sections []llmSection) {
	llmMu.Lock()
	l := llmLog
	llmMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range []string{kind, provider, traceID} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogLLMRequest records the prompt pair sent to the advisor model.
func LogLLMRequest(provider, traceID string, attempt int, systemPrompt, userPrompt string) {
	llmMu.Lock()
	full := llmFull
	llmMu.Unlock()
	system := systemPrompt
	if !full {
		system = fmt.Sprintf("(%d bytes, enable llm_dump_prompt to record)", len(systemPrompt))
	}
	sections := []llmSection{
		{Title: "SYSTEM", Body: system},
		{Title: "USER", Body: userPrompt},
	}
	logLLM(fmt.Sprintf("request#%d", attempt), provider, traceID, sections)
}

// LogLLMResponse records the raw advisor output.
func LogLLMResponse(provider, traceID string, attempt int, raw string) {
	logLLM(fmt.Sprintf("response#%d", attempt), provider, traceID, []llmSection{{Title: "RAW", Body: raw}})
}
