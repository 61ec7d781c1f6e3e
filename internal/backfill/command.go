package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPredictTimeout = 2 * time.Minute
	defaultTermGrace      = 3 * time.Second
	defaultCaptureMax     = 64 * 1024
)

// CommandPredictor asks an external program for coordinates. It runs
// `Program Args... <image>` in Dir and reads the answer from stdout, either
// as {"lat": x, "lon": y} or as "x,y".
type CommandPredictor struct {
	Program   string
	Args      []string
	Dir       string
	Timeout   time.Duration
	TermGrace time.Duration
}

type limitedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remain := b.max - b.buf.Len()
	if remain > 0 {
		if remain > len(p) {
			remain = len(p)
		}
		_, _ = b.buf.Write(p[:remain])
	}
	if len(p) > remain {
		b.truncated = true
	}
	return n, nil
}

// Predict implements Predictor.
func (c CommandPredictor) Predict(ctx context.Context, imagePath string) (float64, float64, error) {
	if c.Program == "" {
		return 0, 0, errors.New("predictor program not configured")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultPredictTimeout
	}
	grace := c.TermGrace
	if grace <= 0 {
		grace = defaultTermGrace
	}

	args := append(append([]string(nil), c.Args...), imagePath)
	cmd := exec.Command(c.Program, args...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	setProcessGroup(cmd)
	stdout := &limitedBuffer{max: defaultCaptureMax}
	stderr := &limitedBuffer{max: defaultCaptureMax}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		var ee *exec.Error
		if errors.As(err, &ee) {
			return 0, 0, fmt.Errorf("program %s not found", c.Program)
		}
		return 0, 0, fmt.Errorf("program %s start failed: %w", c.Program, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	var stopped string
	select {
	case runErr = <-done:
	case <-timer.C:
		stopped = "timeout"
	case <-ctx.Done():
		stopped = "cancelled"
	}
	if stopped != "" {
		terminate(cmd, grace, done)
		return 0, 0, fmt.Errorf("program %s: %s", c.Program, stopped)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr.buf.String())
			if msg == "" {
				return 0, 0, fmt.Errorf("program %s exited with code %d", c.Program, exitErr.ExitCode())
			}
			return 0, 0, fmt.Errorf("program %s exited with code %d: %s", c.Program, exitErr.ExitCode(), lastLine(msg))
		}
		return 0, 0, fmt.Errorf("program %s execution failed: %w", c.Program, runErr)
	}
	if stdout.truncated {
		return 0, 0, fmt.Errorf("program %s: output exceeds %d bytes", c.Program, defaultCaptureMax)
	}
	return ParseCoordinates(stdout.buf.String())
}

func terminate(cmd *exec.Cmd, grace time.Duration, done <-chan error) {
	signalTerm(cmd)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		signalKill(cmd)
		<-done
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ParseCoordinates reads "lat,lon" text or a {"lat","lon"} JSON object and
// checks both values are finite and in range.
func ParseCoordinates(s string) (float64, float64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, 0, errors.New("empty prediction")
	}
	var lat, lon float64
	if strings.HasPrefix(v, "{") {
		var obj struct {
			Lat *float64 `json:"lat"`
			Lon *float64 `json:"lon"`
		}
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return 0, 0, fmt.Errorf("invalid prediction JSON: %w", err)
		}
		if obj.Lat == nil || obj.Lon == nil {
			return 0, 0, errors.New("prediction is missing lat or lon")
		}
		lat, lon = *obj.Lat, *obj.Lon
	} else {
		parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
		if len(parts) != 2 {
			return 0, 0, fmt.Errorf("invalid prediction %q", v)
		}
		var err error
		if lat, err = strconv.ParseFloat(parts[0], 64); err != nil {
			return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
		}
		if lon, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
		}
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude out of range: %v", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude out of range: %v", lon)
	}
	return lat, lon, nil
}
