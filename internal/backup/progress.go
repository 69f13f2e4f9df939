package backup

import (
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/ypeckstadt/cobra/internal/storage"
)

const transferTemplate = `{{ string . "name" }} {{ bar . "[" "=" ">" " " "]"}} {{speed . }} {{percent . }} {{rtime . " ETA"}}`

func (c *Client) showProgress() bool {
	return !c.quiet && term.IsTerminal(int(os.Stderr.Fd()))
}

// transferBar draws the progress of an upload or download. A nil bar
// ignores updates.
type transferBar struct {
	bar *pb.ProgressBar
}

func (c *Client) newTransferBar(name string) *transferBar {
	if !c.showProgress() {
		return nil
	}
	bar := pb.New64(0)
	bar.Set(pb.SIBytesPrefix, true)
	bar.Set("name", name)
	bar.SetTemplateString(transferTemplate)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.SetWriter(os.Stderr)
	bar.Start()
	return &transferBar{bar: bar}
}

// Update moves the bar to st. It matches storage.ProgressFunc.
func (t *transferBar) Update(st storage.Status) {
	if t == nil {
		return
	}
	if st.Name != "" {
		t.bar.Set("name", st.Name)
	}
	if st.Total > 0 {
		t.bar.SetTotal(st.Total)
	}
	t.bar.SetCurrent(st.Current)
}

func (t *transferBar) Finish() {
	if t == nil {
		return
	}
	t.bar.SetCurrent(t.bar.Total())
	t.bar.Finish()
}

// spinner shows that a helper container is running.
type spinner struct {
	bar *pb.ProgressBar
}

func (c *Client) newSpinner(description string) *spinner {
	if !c.showProgress() {
		return nil
	}
	tmpl := fmt.Sprintf(`{{ %q }} {{ cycle . "⠋" "⠙" "⠹" "⠸" "⠼" "⠴" "⠦" "⠧" "⠇" "⠏" }}`, description)
	bar := pb.New(0)
	bar.SetTemplateString(tmpl)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.SetWriter(os.Stderr)
	bar.Start()
	return &spinner{bar: bar}
}

func (s *spinner) Stop() {
	if s == nil {
		return
	}
	s.bar.Finish()
}
