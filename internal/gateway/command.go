package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	logx "dailydispatch/pkg/logx"
)

// Command runs an external automation program for every message. "{phone}"
// in the arguments is replaced by the recipient phone, the message arrives
// on stdin, and exit status 0 means delivered.
type Command struct {
	cfg CommandConfig
	log logx.Logger
}

func NewCommand(cfg CommandConfig, log logx.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("gateway.command.path is required")
	}
	if _, err := exec.LookPath(cfg.Path); err != nil {
		return nil, fmt.Errorf("gateway command: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Command{cfg: cfg, log: log}, nil
}

func (g *Command) Send(ctx context.Context, phone, message string) error {
	if phone == "" {
		return ErrEmptyPhone
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	args := make([]string, len(g.cfg.Args))
	for i, a := range g.cfg.Args {
		args[i] = strings.ReplaceAll(a, "{phone}", phone)
	}
	cmd := exec.CommandContext(ctx, g.cfg.Path, args...)
	cmd.Stdin = strings.NewReader(message)
	cmd.Env = append(os.Environ(),
		"DISPATCH_PHONE="+phone,
		fmt.Sprintf("DISPATCH_WAIT_TIME=%d", int(g.cfg.WaitTime.Seconds())),
		fmt.Sprintf("DISPATCH_CLOSE_TIME=%d", int(g.cfg.CloseTime.Seconds())),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("gateway command: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg != "" {
			return fmt.Errorf("gateway command: %w: %s", err, msg)
		}
		return fmt.Errorf("gateway command: %w", err)
	}
	g.log.Debug("command delivered message", logx.String("phone", phone))
	return nil
}
