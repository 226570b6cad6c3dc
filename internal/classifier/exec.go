package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/fingerspell/fingerspell-core/internal/config"
	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

type execClassifier struct {
	cmd []string
	cfg config.ClassifierConfig
	mu  sync.Mutex
}

type execResult struct {
	Predictions []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
}

// NewExecClassifier wraps an external model process. The configured command is
// invoked once per frame with `--frame <path>` and must print a JSON object
// with a `predictions` array on stdout.
func NewExecClassifier(cfg config.ClassifierConfig) (Classifier, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse classifier command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("classifier command is empty")
	}
	return &execClassifier{cmd: args, cfg: cfg}, nil
}

func (c *execClassifier) Classify(ctx context.Context, frame protocol.GestureFrame) ([]protocol.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "fspell_frame_*."+frameExt(frame.Encoding))
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(frame.Image); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	args := append([]string{}, c.cmd...)
	base := args[0]
	cmdArgs := append(args[1:], "--frame", file.Name())

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("classifier command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}

	preds := make([]protocol.Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		cand := protocol.Prediction{Label: p.Label, Confidence: p.Confidence}
		if err := cand.Validate(); err != nil {
			return nil, fmt.Errorf("invalid prediction from classifier: %w", err)
		}
		preds = append(preds, cand)
	}
	return preds, nil
}

func (c *execClassifier) Close() error { return nil }

func frameExt(encoding string) string {
	switch encoding {
	case "jpeg":
		return "jpg"
	case "png":
		return "png"
	default:
		return "bin"
	}
}
