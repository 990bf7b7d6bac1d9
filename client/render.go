package client

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chat-relay/domain/event"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Printer formats server events for a terminal.
type Printer struct {
	Colours bool
}

func (p Printer) paint(c color.Color, text string) string {
	if !p.Colours {
		return text
	}
	return c.Render(text)
}

// Event returns the line to print for e, or "" for events not worth showing.
func (p Printer) Event(e event.DomainEvent) string {
	switch evt := e.(type) {
	case *event.ReceiveMessage:
		return fmt.Sprintf("[%s] %s: %s  %s",
			evt.Timestamp.Local().Format(time.TimeOnly),
			p.paint(color.FgCyan, evt.SenderID.String()),
			evt.Message,
			p.paint(color.FgGray, "("+evt.MessageID+")"))
	case *event.MessageSent:
		return p.paint(color.FgGray, fmt.Sprintf("  sent %s", evt.MessageID))
	case *event.MessageDelivered:
		return p.paint(color.FgGray, fmt.Sprintf("  delivered %s", evt.MessageID))
	case *event.MessageRead:
		return p.paint(color.FgGreen, fmt.Sprintf("  read %s", evt.MessageID))
	case *event.UserTyping:
		return p.paint(color.FgGray, fmt.Sprintf("%s is typing...", evt.SenderID))
	case *event.UserStoppedTyping:
		return ""
	case *event.UserOnline:
		return p.paint(color.FgGreen, fmt.Sprintf("* %s is online", name(evt.Profile)))
	case *event.UserOffline:
		return p.paint(color.FgYellow, fmt.Sprintf("* %s went offline", name(evt.Profile)))
	case *event.NewUser:
		return p.paint(color.FgMagenta, fmt.Sprintf("* %s joined", name(evt.Profile)))
	case *event.ForceDisconnect:
		return p.paint(color.FgRed, "! disconnected: "+evt.Message)
	case *event.Registered:
		return p.paint(color.FgGreen, fmt.Sprintf(">>> connected as %s", evt.UserID))
	case *event.Error:
		return p.paint(color.FgRed, "! "+evt.Message)
	default:
		return ""
	}
}

func name(profile event.Profile) string {
	if profile.Username != "" {
		return fmt.Sprintf("%s <%s>", profile.Username, profile.Email)
	}
	return profile.Email
}

// Users prints the directory as a table.
func (p Printer) Users(w io.Writer, users []User) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Email", "Username", "Status"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, user := range users {
		status := "offline"
		if user.Online {
			status = "online"
		}
		table.Append([]string{user.Email, user.Username, status})
	}
	table.Render()
}

// History prints a page oldest first.
func (p Printer) History(w io.Writer, page HistoryPage) {
	lines := make([]string, 0, len(page.Messages))
	for i := len(page.Messages) - 1; i >= 0; i-- {
		m := page.Messages[i]
		flags := ""
		if m.Read {
			flags = " ✓✓"
		} else if m.Delivered {
			flags = " ✓"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s%s",
			m.Timestamp.Local().Format(time.DateTime), m.SenderID, m.Message, flags))
	}
	if len(lines) > 0 {
		_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
	}
	if page.Cursor != nil {
		_, _ = fmt.Fprintln(w, p.paint(color.FgGray, "(more: /history "+*page.Cursor+")"))
	}
}
