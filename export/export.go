// Package export renders archived conversations as markdown: deterministic
// transcripts for diffing and sharing, plus raw-capture conversion for
// inspecting conversations the classifier struggled with.
package export

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/convarch/reconstruct"
)

// ImageRef points a transcript at one image row. Filename is the local
// content-addressed file when the downloader has fetched it, empty otherwise.
type ImageRef struct {
	MessageID int64
	URL       string
	Time      string
	Filename  string
}

// frontmatter opens a transcript. Field order is emission order; there is
// deliberately no timestamp, identical archives must produce identical bytes.
type frontmatter struct {
	ConversationID string `yaml:"conversation_id"`
	ClientID       string `yaml:"client_id"`
	ClientName     string `yaml:"client_name"`
	Messages       int    `yaml:"messages"`
	Images         int    `yaml:"images"`
}

const unknownDate = "Date unknown"

// Transcript writes the conversation as markdown: YAML frontmatter, a
// heading per day, one "**sender** (time): text" line per message, and the
// message's image links directly beneath it. Messages must arrive in archive
// order, oldest first; placeholder texts render as stored.
func Transcript(w io.Writer, conv reconstruct.Conversation, messages []reconstruct.Message, images []ImageRef) error {
	fm, err := yaml.Marshal(frontmatter{
		ConversationID: conv.ID,
		ClientID:       conv.ClientID,
		ClientName:     conv.ClientName,
		Messages:       len(messages),
		Images:         len(images),
	})
	if err != nil {
		return fmt.Errorf("export: frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n")

	if len(messages) == 0 {
		b.WriteString("\n_no messages captured_\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	byMessage := make(map[int64][]ImageRef, len(images))
	for _, img := range images {
		byMessage[img.MessageID] = append(byMessage[img.MessageID], img)
	}

	prevDay := ""
	for _, msg := range messages {
		day := unknownDate
		if msg.Date != nil {
			day = *msg.Date
		}
		if day != prevDay {
			fmt.Fprintf(&b, "\n## %s\n", day)
			prevDay = day
		}
		b.WriteString("\n")
		b.WriteString(messageLine(msg))
		for _, img := range byMessage[msg.MessageID] {
			target := img.URL
			if img.Filename != "" {
				target = img.Filename
			}
			fmt.Fprintf(&b, "![photo](%s)\n", target)
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func messageLine(msg reconstruct.Message) string {
	name := msg.SenderName
	if name == "" {
		name = string(msg.SenderType)
	}
	if msg.TimeLabel != "" {
		return fmt.Sprintf("**%s** (%s): %s\n", name, msg.TimeLabel, msg.Text)
	}
	return fmt.Sprintf("**%s**: %s\n", name, msg.Text)
}

// WriteFile writes data to path atomically: a sibling .tmp file first, then
// a rename over the target, so readers never see a torn transcript.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("export: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}

// SnapshotMarkdown converts a stored raw capture to readable markdown for
// manual inspection. Empty input converts to empty output.
func SnapshotMarkdown(html []byte) (string, error) {
	if len(html) == 0 {
		return "", nil
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	out, err := conv.ConvertString(string(html))
	if err != nil {
		return "", fmt.Errorf("export: convert snapshot: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}
