package chat

import (
	"fmt"
	"strings"

	"reverie/internal/convo"
)

// View renders the full frame: header, timeline viewport, input, status line.
func (m Model) View() string {
	if !m.ready {
		return "\n  loading..."
	}
	if m.viewMode == SessionListView {
		return m.list.View()
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	return b.String()
}

func (m Model) headerView() string {
	title := m.styles.Header.Render(m.active.Name)
	if stats, ok := m.engine.TurnStats(); ok && stats.TurnLimit != -1 {
		counter := fmt.Sprintf("  turns %d/%d", stats.TurnCount, stats.TurnLimit)
		if stats.AtLimit() {
			title += m.styles.Limit.Render(counter)
		} else {
			title += m.styles.Status.Render(counter)
		}
	}
	return title + "\n" + m.styles.Status.Render(strings.Repeat("─", max(m.width, 1)))
}

func (m Model) statusView() string {
	switch {
	case m.engine.IsAtTurnLimit():
		return m.styles.Limit.Render("Turn limit reached for this conversation. ctrl+n starts a new one.")
	case m.engine.RecoveryBusy():
		return m.styles.Status.Render(m.spinner.View() + " retrying...")
	case m.isStreaming:
		return m.styles.Status.Render(m.spinner.View() + " " + m.active.Name + " is typing...")
	case m.engine.LastError() != "":
		return m.styles.Failed.Render("✗ "+m.engine.LastError()) +
			m.styles.Help.Render("  ctrl+r retry · ctrl+e resume")
	case m.err != nil:
		return m.styles.Failed.Render("✗ " + m.err.Error())
	}
	return m.styles.Help.Render("enter send · ctrl+t thinking · ctrl+l sessions · ctrl+n new · ctrl+c quit")
}

// renderTimeline flattens the engine snapshot into the viewport body.
func (m Model) renderTimeline() string {
	msgs := m.engine.Snapshot()
	if len(msgs) == 0 {
		if !m.engine.Hydrated() {
			return m.styles.Status.Render("  loading history...")
		}
		return m.styles.Status.Render("  No messages yet. Say hello.")
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg convo.Message) string {
	var b strings.Builder

	label := m.styles.CharLabel.Render(m.active.Name)
	if msg.Sender == convo.SenderUser {
		label = m.styles.UserLabel.Render("You")
	}
	b.WriteString(label)
	b.WriteString(m.styles.Status.Render("  " + msg.Timestamp.Format("15:04")))
	b.WriteString("\n")

	if m.showThinking && msg.Thinking != "" {
		for _, line := range strings.Split(strings.TrimRight(msg.Thinking, "\n"), "\n") {
			b.WriteString(m.styles.Thinking.Render("  ∴ " + line))
			b.WriteString("\n")
		}
	}

	switch {
	case msg.Failed:
		b.WriteString(m.styles.Failed.Render("  ✗ " + msg.Content))
		b.WriteString("\n")
	case msg.Sender == convo.SenderAssistant:
		b.WriteString(m.renderMarkdown(msg.Content))
		if !msg.Complete {
			b.WriteString(m.styles.Status.Render("  ▍"))
			b.WriteString("\n")
		}
	default:
		b.WriteString("  " + msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// renderMarkdown runs assistant content through glamour, falling back to the
// raw text when rendering fails mid-stream on unbalanced markup.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil || content == "" {
		return "  " + content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return "  " + content + "\n"
	}
	return strings.TrimRight(out, "\n") + "\n"
}
