// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-trustgate/internal/rest"
	"github.com/jeremyhahn/go-trustgate/pkg/password"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

func (p *Printer) validate() error {
	switch p.format {
	case OutputFormatText, OutputFormatJSON, OutputFormatTable:
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	}
	_, err := fmt.Fprintln(p.writer, message)
	return err
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	}
	_, werr := fmt.Fprintf(p.writer, "Error: %v\n", err)
	return werr
}

// PrintLogs prints security log lines. Table output uses the parsed
// entries; text output keeps the stored line format.
func (p *Printer) PrintLogs(lines []string, entries []securitylog.Entry) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(rest.SecurityLogsResponse{Count: len(lines), Lines: lines, Entries: entries})
	case OutputFormatTable:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No security events")
			return nil
		}
		fmt.Fprintf(p.writer, "%-29s %-22s %-20s %s\n", "TIME", "EVENT", "USER", "DETAIL")
		fmt.Fprintln(p.writer, strings.Repeat("-", 90))
		for _, e := range entries {
			fmt.Fprintf(p.writer, "%-29s %-22s %-20s %s\n",
				e.Time.UTC().Format(securitylog.TimestampFormat), e.Kind, e.Username, e.Detail)
		}
		return nil
	case OutputFormatText:
		if len(lines) == 0 {
			fmt.Fprintln(p.writer, "No security events")
			return nil
		}
		for _, line := range lines {
			fmt.Fprintln(p.writer, line)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintLockout prints one account's lockout state.
func (p *Printer) PrintLockout(l *rest.LockoutResponse) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(l)
	}
	fmt.Fprintf(p.writer, "User:      %s\n", l.Username)
	fmt.Fprintf(p.writer, "State:     %s\n", l.State)
	fmt.Fprintf(p.writer, "Locked:    %t\n", l.Locked)
	fmt.Fprintf(p.writer, "Attempts:  %d/%d\n", l.Attempts, l.Threshold)
	if l.Locked {
		fmt.Fprintf(p.writer, "Remaining: %d minutes\n", l.RemainingMinutes)
	}
	return nil
}

// PrintPins prints a pin set.
func (p *Printer) PrintPins(host string, pins []pinning.Pin) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(rest.PinsResponse{Host: host, Pins: pins})
	}
	if host != "" {
		fmt.Fprintf(p.writer, "Host: %s\n", host)
	}
	for _, pin := range pins {
		fmt.Fprintf(p.writer, "  %s\n", pin)
	}
	return nil
}

// PrintStoreStatus prints the secret store protection mode.
func (p *Printer) PrintStoreStatus(s *rest.StoreResponse) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(s)
	}
	fmt.Fprintf(p.writer, "Mode:      %s\n", s.Mode)
	fmt.Fprintf(p.writer, "Provider:  %s\n", s.Provider)
	if s.Algorithm != "" {
		fmt.Fprintf(p.writer, "Algorithm: %s\n", s.Algorithm)
	}
	if s.Reason != "" {
		fmt.Fprintf(p.writer, "Reason:    %s\n", s.Reason)
	}
	return nil
}

// PrintValue prints a secret store value.
func (p *Printer) PrintValue(key string, value any) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"key": key, "value": value})
	}
	_, err := fmt.Fprintln(p.writer, value)
	return err
}

// PrintCheck prints a yes/no answer about subject.
func (p *Printer) PrintCheck(field, subject string, ok bool) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{"input": subject, field: ok})
	}
	_, err := fmt.Fprintf(p.writer, "%t\n", ok)
	return err
}

// PrintStrength prints a password strength score and any unmet
// requirements.
func (p *Printer) PrintStrength(score password.Score, unmet []string) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.format == OutputFormatJSON {
		if unmet == nil {
			unmet = []string{}
		}
		return p.printJSON(map[string]any{
			"score":   score.Value,
			"level":   score.Level.String(),
			"percent": score.Level.Percent(),
			"unmet":   unmet,
		})
	}
	fmt.Fprintf(p.writer, "Strength: %s (%d/100)\n", score.Level, score.Value)
	for _, req := range unmet {
		fmt.Fprintf(p.writer, "  - %s\n", req)
	}
	return nil
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
