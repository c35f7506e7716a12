package tui

import (
	"context"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/cryptadb/crypta/internal/client"
	"github.com/cryptadb/crypta/internal/email"
	"github.com/cryptadb/crypta/internal/query"
)

// composeState holds the in-progress email form. The send targets the
// current filtered set; the recipient count is previewed and confirmed
// before anything is dispatched.
type composeState struct {
	form *huh.Form

	subject    string
	body       string
	classes    []string
	attachPath string
}

func newCompose() *composeState {
	c := &composeState{}
	c.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Subject").
				Value(&c.subject),
			huh.NewText().
				Title("Body").
				Value(&c.body),
			huh.NewMultiSelect[string]().
				Title("Recipient email classes").
				Options(
					huh.NewOption("Personal", "personal"),
					huh.NewOption("Parish", "parish"),
					huh.NewOption("Diocesan", "diocesan"),
				).
				Value(&c.classes),
			huh.NewInput().
				Title("Attachment path (optional)").
				Value(&c.attachPath),
		),
	)
	return c
}

// recipientClasses converts the multi-select values to the wire flags.
func (c *composeState) recipientClasses() query.RecipientClasses {
	var rc query.RecipientClasses
	for _, v := range c.classes {
		switch v {
		case "personal":
			rc.Personal = true
		case "parish":
			rc.Parish = true
		case "diocesan":
			rc.Diocesan = true
		}
	}
	return rc
}

func (m Model) updateCompose(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.compose == nil {
		m.mode = modeBrowse
		return m, nil
	}

	form, cmd := m.compose.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.compose.form = f
	}

	switch m.compose.form.State {
	case huh.StateAborted:
		m.compose = nil
		m.mode = modeBrowse
		return m, nil
	case huh.StateCompleted:
		classes := m.compose.recipientClasses()
		if err := email.Validate(m.compose.subject, m.compose.body, classes); err != nil {
			m.compose = nil
			m.mode = modeBrowse
			return m, m.setStatus("email rejected: " + err.Error())
		}
		return m, m.countCmd(classes)
	}
	return m, cmd
}

// countCmd previews how many distinct recipients the send would reach.
func (m *Model) countCmd(classes query.RecipientClasses) tea.Cmd {
	api := m.api
	base := m.session.Base
	filters := append([]string(nil), m.session.Applied...)
	return func() tea.Msg {
		n, err := api.EmailCount(context.Background(), base, filters, classes)
		return emailCountMsg{count: n, err: err}
	}
}

// sendCmd dispatches the confirmed email. An attachment is uploaded to
// temporary storage first and the send references the returned URL.
func (m *Model) sendCmd() tea.Cmd {
	api := m.api
	c := m.compose
	req := client.SendRequest{
		Base:    m.session.Base,
		Filters: append([]string(nil), m.session.Applied...),
		Subject: c.subject,
		Body:    c.body,
		Classes: c.recipientClasses(),
	}
	attach := c.attachPath
	return func() tea.Msg {
		if attach != "" {
			f, err := os.Open(attach)
			if err != nil {
				return emailSentMsg{err: err}
			}
			url, err := api.UploadAttachment(context.Background(), filepath.Base(attach), f)
			f.Close()
			if err != nil {
				return emailSentMsg{err: err}
			}
			req.AttachmentURL = url
		}
		sent, err := api.SendEmail(context.Background(), req)
		return emailSentMsg{sent: sent, err: err}
	}
}
