// Package register drives the profile registration dialogue. The dialogue
// is a fixed sequence of questions (gender, age, region, looking_for); each
// valid answer is committed to the profile store before the next question is
// asked, so an abandoned dialogue keeps whatever was already answered.
package register

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pairwise/anonchat/internal/profile"
)

// Dialogue steps, in order.
const (
	stepGender = iota
	stepAge
	stepRegion
	stepLookingFor
)

// Prompts and re-prompts shown to the user.
const (
	PromptGender     = "What is your gender? (M/F)"
	PromptAge        = "How old are you?"
	PromptRegion     = "What region are you from?"
	PromptLookingFor = "Who are you looking for? (M/F/any)"
	PromptDone       = "Registration complete. Use search to find a partner."

	RepromptGender     = "Please answer M or F."
	RepromptAge        = "Please enter your age as a number between 14 and 120."
	RepromptRegion     = "Please enter a region name (at least 2 characters)."
	RepromptLookingFor = "Please answer M, F or any."
)

// FieldWriter is the subset of the profile store the dialogue commits
// answers through.
type FieldWriter interface {
	SetGender(ctx context.Context, userID int64, gender string) error
	SetAge(ctx context.Context, userID int64, age int) error
	SetRegion(ctx context.Context, userID int64, region string) error
	SetLookingFor(ctx context.Context, userID int64, lookingFor string) error
}

// Form tracks in-flight registration dialogues keyed by user ID. Step state
// is in-memory only; a restart loses open dialogues but not committed
// answers.
type Form struct {
	mu    sync.Mutex
	steps map[int64]int

	store FieldWriter
}

// NewForm returns a Form committing answers through store.
func NewForm(store FieldWriter) *Form {
	return &Form{
		steps: make(map[int64]int),
		store: store,
	}
}

// Begin starts (or restarts) the dialogue for userID and returns the first
// prompt.
func (f *Form) Begin(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.steps[userID] = stepGender
	return PromptGender
}

// Active reports whether userID has a dialogue in progress.
func (f *Form) Active(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.steps[userID]
	return ok
}

// Cancel abandons the dialogue for userID, if any.
func (f *Form) Cancel(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.steps, userID)
}

// Answer feeds one free-text answer into userID's dialogue and returns the
// next prompt. An invalid answer re-prompts the same question without
// advancing. A store failure keeps the dialogue on the current step so the
// answer can be retried.
func (f *Form) Answer(ctx context.Context, userID int64, text string) (string, error) {
	f.mu.Lock()
	step, ok := f.steps[userID]
	f.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("register: no dialogue in progress for user %d", userID)
	}

	text = strings.TrimSpace(text)

	switch step {
	case stepGender:
		gender := strings.ToUpper(text)
		if !profile.ValidGender(gender) {
			return RepromptGender, nil
		}
		if err := f.store.SetGender(ctx, userID, gender); err != nil {
			return "", fmt.Errorf("register: commit gender: %w", err)
		}
		f.advance(userID, stepAge)
		return PromptAge, nil

	case stepAge:
		age, err := strconv.Atoi(text)
		if err != nil || !profile.ValidAge(age) {
			return RepromptAge, nil
		}
		if err := f.store.SetAge(ctx, userID, age); err != nil {
			return "", fmt.Errorf("register: commit age: %w", err)
		}
		f.advance(userID, stepRegion)
		return PromptRegion, nil

	case stepRegion:
		if len(text) < profile.MinRegionLen {
			return RepromptRegion, nil
		}
		if err := f.store.SetRegion(ctx, userID, text); err != nil {
			return "", fmt.Errorf("register: commit region: %w", err)
		}
		f.advance(userID, stepLookingFor)
		return PromptLookingFor, nil

	case stepLookingFor:
		lookingFor := strings.ToUpper(text)
		if lookingFor == "ANY" {
			lookingFor = profile.LookingForAny
		}
		if !profile.ValidLookingFor(lookingFor) {
			return RepromptLookingFor, nil
		}
		if err := f.store.SetLookingFor(ctx, userID, lookingFor); err != nil {
			return "", fmt.Errorf("register: commit looking_for: %w", err)
		}
		f.Cancel(userID)
		return PromptDone, nil

	default:
		f.Cancel(userID)
		return "", fmt.Errorf("register: user %d in unknown step %d", userID, step)
	}
}

func (f *Form) advance(userID int64, step int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.steps[userID] = step
}
