// Chaos dashboard for the resilience lab: pick a collaborator and a failure
// mode, apply it through the gateway, and fire test purchases to watch the
// workflow degrade and recover.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type collaborator struct {
	Name        string
	ControlPath string
	Modes       []string
}

var collaborators = []collaborator{
	{"inventory", "/control/inventory-chaos", []string{"normal", "crash"}},
	{"payment", "/control/payment-chaos", []string{"normal", "latency"}},
	{"notification", "/control/notification-chaos", []string{"up", "down"}},
	{"database", "/control/db-chaos", []string{"normal", "flaky"}},
}

type model struct {
	selectedCol  int
	selectedMode int
	status       string
	lastOutcome  string
	busy         bool
}

func initialModel() model {
	return model{status: "Ready"}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selectedCol > 0 {
				m.selectedCol--
				m.selectedMode = 0
			}
		case "down":
			if m.selectedCol < len(collaborators)-1 {
				m.selectedCol++
				m.selectedMode = 0
			}
		case "left":
			if m.selectedMode > 0 {
				m.selectedMode--
			}
		case "right":
			if m.selectedMode < len(collaborators[m.selectedCol].Modes)-1 {
				m.selectedMode++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Applying chaos..."
			col := collaborators[m.selectedCol]
			return m, applyChaosCmd(col, col.Modes[m.selectedMode])
		case "t":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Buying ticket..."
			return m, buyTicketCmd()
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Resetting all chaos..."
			return m, resetAllCmd()
		}
	case actionResult:
		m.busy = false
		m.status = msg.status
		if msg.outcome != "" {
			m.lastOutcome = msg.outcome
		}
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "tolerancia-fallos chaos dashboard")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Collaborators:")
	for i, col := range collaborators {
		marker := " "
		if i == m.selectedCol {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-13s modes: %s\n", marker, col.Name, renderModes(col.Modes, i == m.selectedCol, m.selectedMode))
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.lastOutcome != "" {
		fmt.Fprintf(b, "Last purchase: %s\n", m.lastOutcome)
	}
	fmt.Fprintln(b, "\nControls: up/down collaborator, left/right mode, enter apply, t buy ticket, r reset all, q quit")
	return b.String()
}

func renderModes(modes []string, active bool, selected int) string {
	parts := make([]string, len(modes))
	for i, mo := range modes {
		if active && i == selected {
			parts[i] = "[" + mo + "]"
		} else {
			parts[i] = mo
		}
	}
	return strings.Join(parts, " ")
}

type actionResult struct {
	status  string
	outcome string
}

func applyChaosCmd(col collaborator, mode string) tea.Cmd {
	return func() tea.Msg {
		var payload any
		if col.Name == "database" {
			payload = map[string]any{"enable": mode == "flaky"}
		} else {
			payload = map[string]any{"mode": mode}
		}
		body, err := postControl(col.ControlPath, payload)
		if err != nil {
			return actionResult{status: fmt.Sprintf("Chaos failed for %s: %v", col.Name, err)}
		}
		return actionResult{status: fmt.Sprintf("%s -> %s (%s)", col.Name, mode, body)}
	}
}

func buyTicketCmd() tea.Cmd {
	return func() tea.Msg {
		code, body, err := buyTicket()
		if err != nil {
			return actionResult{status: fmt.Sprintf("Purchase failed: %v", err)}
		}
		return actionResult{status: fmt.Sprintf("Purchase returned %d", code), outcome: body}
	}
}

func resetAllCmd() tea.Cmd {
	return func() tea.Msg {
		body, err := postControl("/control/reset-all", map[string]any{})
		if err != nil {
			return actionResult{status: fmt.Sprintf("Reset failed: %v", err)}
		}
		return actionResult{status: "All chaos reset: " + body}
	}
}

func postControl(path string, payload any) (string, error) {
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := baseURL() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func buyTicket() (int, string, error) {
	payload := map[string]any{
		"user_id": "cli-user",
		"item_id": getenv("ITEM_ID", "ticket_rock_concert"),
		"amount":  50.0,
	}
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL()+"/buy-ticket", bytes.NewReader(data))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

func baseURL() string {
	return strings.TrimRight(getenv("GATEWAY_BASE_URL", "http://localhost:8080"), "/")
}

func main() {
	runCmd := flag.String("run", "", "run action without the UI: buy|reset|chaos")
	target := flag.String("target", "inventory", "collaborator for -run chaos")
	mode := flag.String("mode", "normal", "mode for -run chaos")
	flag.Parse()

	if *runCmd != "" {
		res := runAction(*runCmd, *target, *mode)
		fmt.Println(res.status)
		if res.outcome != "" {
			fmt.Println(res.outcome)
		}
		return
	}

	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func runAction(action, target, mode string) actionResult {
	switch action {
	case "buy":
		return buyTicketCmd()().(actionResult)
	case "reset":
		return resetAllCmd()().(actionResult)
	case "chaos":
		for _, col := range collaborators {
			if col.Name == target {
				return applyChaosCmd(col, mode)().(actionResult)
			}
		}
		return actionResult{status: "unknown collaborator: " + target}
	default:
		return actionResult{status: "unknown action: " + action}
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
