package engine

import (
	"fmt"
	"strings"

	"cryptoprinter/internal/gateway/notifier"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/pkg/circuit"
	"cryptoprinter/internal/pkg/text"
)

const maxErrorRunes = 600

func (e *LiveEngine) notifyFailure(res CycleResult, err error) {
	if e.notifier == nil || err == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:  "⚠️",
		Title: "Decision cycle failed",
		Sections: []notifier.MessageSection{
			{Title: "Error", Lines: []string{text.Truncate(err.Error(), maxErrorRunes)}},
		},
		Footer:    "trace " + res.TraceID,
		Timestamp: res.FinishedAt,
	}
	if len(res.Symbols) > 0 {
		msg.Sections = append(msg.Sections, notifier.MessageSection{
			Title: "Symbols",
			Lines: []string{strings.Join(res.Symbols, ", ")},
		})
	}
	e.send(msg)
}

func (e *LiveEngine) notifyBreaker(name string, from, to circuit.State) {
	logger.Warnf("LiveEngine: circuit %s %s -> %s", name, from, to)
	if e.notifier == nil {
		return
	}
	icon := "🛑"
	if to == circuit.StateClosed {
		icon = "✅"
	}
	e.send(notifier.StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("Circuit %s: %s -> %s", name, from, to),
		Sections: []notifier.MessageSection{{
			Title: "Cycles",
			Lines: []string{fmt.Sprintf("consecutive failures %d", e.CircuitBreaker.Failures())},
		}},
		Timestamp: e.now(),
	})
}

func (e *LiveEngine) send(msg notifier.StructuredMessage) {
	if err := e.notifier.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("LiveEngine: notify failed: %v", err)
	}
}
