package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
}

type progressSpinnerFactory func(string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithRemoveWhenDone(false).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// StepStatus represents the state of a progress step.
type StepStatus int

const (
	// StepPending indicates a step has not yet started.
	StepPending StepStatus = iota
	// StepRunning indicates a step is currently in progress.
	StepRunning
	// StepCompleted indicates a step finished successfully.
	StepCompleted
	// StepFailed indicates a step encountered an error.
	StepFailed
)

// Step represents a single progress step.
type Step struct {
	ID           string
	Message      string
	Status       StepStatus
	CompletedMsg string // shown instead of Message when completed
	IndentLevel  int    // 0 = root, 1 = child (→)
	startTime    time.Time
}

// ProgressManager shows a sequence of steps, one spinner at a time.
type ProgressManager struct {
	steps          []*Step
	stepMap        map[string]*Step
	current        *Step
	currentSpinner progressSpinner
	spinnerFactory progressSpinnerFactory
	out            io.Writer
	mu             sync.Mutex
	disabled       bool
}

// ProgressManagerOption allows customizing ProgressManager behavior at creation time.
type ProgressManagerOption func(*ProgressManager)

// WithProgressOutput enables or disables terminal output for a ProgressManager.
func WithProgressOutput(enabled bool) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.disabled = !enabled
	}
}

func withProgressSpinnerFactory(factory progressSpinnerFactory) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.spinnerFactory = factory
	}
}

// NewProgressManager creates a new ProgressManager with all steps registered upfront. Root
// step headers are written to out.
func NewProgressManager(out io.Writer, steps []*Step, opts ...ProgressManagerOption) *ProgressManager {
	pterm.Success.Prefix = pterm.Prefix{
		Text:  "✓",
		Style: pterm.NewStyle(pterm.FgGreen),
	}
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "✗",
		Style: pterm.NewStyle(pterm.FgRed),
	}
	// leading space on each frame lines spinners up with completed steps
	baseSequence := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinnerSequence := make([]string, len(baseSequence))
	for i, char := range baseSequence {
		spinnerSequence[i] = " " + char
	}
	pterm.DefaultSpinner.Sequence = spinnerSequence
	pterm.DefaultSpinner.Style = pterm.NewStyle(pterm.FgCyan)

	stepMap := make(map[string]*Step, len(steps))
	for _, step := range steps {
		stepMap[step.ID] = step
	}

	pm := &ProgressManager{
		steps:          steps,
		stepMap:        stepMap,
		spinnerFactory: defaultSpinnerFactory,
		out:            out,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// getPrefix returns the formatted prefix for a step based on its indent level.
func getPrefix(step *Step) string {
	prefix := strings.Repeat("  ", step.IndentLevel)
	if step.IndentLevel > 0 {
		prefix += "→ "
	}
	return prefix
}

func elapsedSince(step *Step) string {
	if step.startTime.IsZero() {
		return ""
	}
	return fmt.Sprintf(" (%s)", time.Since(step.startTime).Round(time.Millisecond))
}

// Start begins animating the spinner for the given step ID.
func (pm *ProgressManager) Start(stepID string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, exists := pm.stepMap[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}
	step.Status = StepRunning
	step.startTime = time.Now()
	if step.IndentLevel > 0 {
		pm.current = step
	}

	if pm.disabled {
		return nil
	}

	if step.IndentLevel == 0 {
		//nolint:errcheck
		fmt.Fprintf(pm.out, " …  %s\n", step.Message)
		return nil
	}

	if pm.currentSpinner != nil {
		//nolint:errcheck
		pm.currentSpinner.Stop()
	}
	// pterm adds a space after the spinner frame, so children get one more here
	spinner, err := pm.spinnerFactory(strings.Repeat("  ", step.IndentLevel) + "  → " + step.Message)
	if err != nil {
		return fmt.Errorf("failed to start child spinner: %w", err)
	}
	pm.currentSpinner = spinner
	return nil
}

// Current returns the ID of the running child step, or "" if there is none.
func (pm *ProgressManager) Current() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.current == nil || pm.current.Status != StepRunning {
		return ""
	}
	return pm.current.ID
}

// Complete marks a step as completed with its success message.
func (pm *ProgressManager) Complete(stepID string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, exists := pm.stepMap[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}
	msg := step.CompletedMsg
	if msg == "" {
		msg = step.Message
	}
	pm.completeLocked(step, msg)
	return nil
}

// CompleteWithMessage marks a step as completed with a custom message.
func (pm *ProgressManager) CompleteWithMessage(stepID, message string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, exists := pm.stepMap[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}
	pm.completeLocked(step, message)
	return nil
}

func (pm *ProgressManager) completeLocked(step *Step, msg string) {
	step.Status = StepCompleted
	if pm.disabled {
		return
	}

	line := msg + elapsedSince(step)
	if step.IndentLevel > 0 {
		line = " " + getPrefix(step) + line
	}
	if pm.currentSpinner != nil && step.IndentLevel > 0 {
		pm.currentSpinner.Success(line)
		pm.currentSpinner = nil
		return
	}
	pterm.Success.Println(line)
}

// Fail marks a step as failed with an error message.
func (pm *ProgressManager) Fail(stepID string, err error) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, exists := pm.stepMap[stepID]
	if !exists {
		return fmt.Errorf("step %q not found", stepID)
	}
	step.Status = StepFailed
	if pm.disabled {
		return nil
	}

	msg := fmt.Sprintf("%s: %v", step.Message, err)
	if step.IndentLevel > 0 {
		msg = " " + getPrefix(step) + msg
	}
	if pm.currentSpinner != nil {
		pm.currentSpinner.Fail(msg)
		pm.currentSpinner = nil
		return nil
	}
	pterm.Error.Println(msg)
	return nil
}

// Stop stops any active spinner.
func (pm *ProgressManager) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.disabled {
		return
	}
	if pm.currentSpinner != nil {
		//nolint:errcheck
		pm.currentSpinner.Stop()
		pm.currentSpinner = nil
	}
}
