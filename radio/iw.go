package radio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultIWTimeout = 100 * time.Millisecond

// IWTuner switches the channel of a wireless interface using the iw tool.
type IWTuner struct {
	iface   string
	command string
	timeout time.Duration
}

func NewIWTuner(iface string) *IWTuner {
	return &IWTuner{
		iface:   iface,
		command: "iw",
		timeout: defaultIWTimeout,
	}
}

func (t *IWTuner) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

func (t *IWTuner) Args(channel int) []string {
	return []string{"dev", t.iface, "set", "channel", strconv.Itoa(channel)}
}

func (t *IWTuner) SetChannel(channel int) error {
	if _, err := ChannelFrequency(channel); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	stderr := new(bytes.Buffer)
	cmd := exec.CommandContext(ctx, t.command, t.Args(channel)...)
	cmd.Stderr = stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: setting channel %d on %s", ErrTimeout, channel, t.iface)
	}
	if err != nil {
		return fmt.Errorf("cannot set channel %d on %s: %w %s", channel, t.iface, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
