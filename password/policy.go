package password

import (
	"fmt"
	"strings"
	"unicode"
)

// Requirements are the hard gates a password must pass. Failing any of them
// produces a Feedback entry and makes the password unacceptable regardless
// of its score.
type Requirements struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultRequirements is the baseline sign-up policy.
func DefaultRequirements() Requirements {
	return Requirements{
		MinLength:        10,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
	}
}

// UserInfo carries identity fields a password must not be derived from.
type UserInfo struct {
	Email string
	Name  string
}

// Result is the outcome of scoring one candidate password.
//
// Feedback lists hard-requirement violations; Suggestions is soft advice.
// IsStrong requires Score >= 3 AND an empty Feedback list: a long password
// still fails when a hard requirement (say, missing uppercase) failed.
type Result struct {
	Score       int
	Feedback    []string
	Suggestions []string
	IsStrong    bool
}

// Policy scores candidate passwords against requirements, a common-password
// set, and the owner's identity fields. Immutable after construction.
type Policy struct {
	requirements Requirements
	common       map[string]struct{}
}

// NewPolicy builds a [Policy]. commonPasswords entries are matched exactly,
// case-insensitively; nil selects the built-in set.
func NewPolicy(req Requirements, commonPasswords []string) *Policy {
	if req.MinLength <= 0 {
		req.MinLength = DefaultRequirements().MinLength
	}
	if commonPasswords == nil {
		commonPasswords = commonPasswordList
	}
	common := make(map[string]struct{}, len(commonPasswords))
	for _, p := range commonPasswords {
		common[strings.ToLower(p)] = struct{}{}
	}
	return &Policy{requirements: req, common: common}
}

// Requirements returns the hard gates this policy enforces.
func (p *Policy) Requirements() Requirements {
	return p.requirements
}

const (
	scoreMax       = 5
	strongMinScore = 3
)

// Score evaluates one candidate. It never errors: an unusable password
// simply scores low with Feedback explaining why.
func (p *Policy) Score(candidate string, info UserInfo) Result {
	var res Result

	classes := classifyRunes(candidate)

	// Fixed increments for length and each present character class.
	if len(candidate) >= p.requirements.MinLength {
		res.Score++
	} else {
		res.Feedback = append(res.Feedback,
			fmt.Sprintf("must be at least %d characters long", p.requirements.MinLength))
	}
	for _, c := range []struct {
		present  bool
		required bool
		missing  string
		advice   string
	}{
		{classes.upper, p.requirements.RequireUppercase, "must contain an uppercase letter", "add uppercase letters"},
		{classes.lower, p.requirements.RequireLowercase, "must contain a lowercase letter", "add lowercase letters"},
		{classes.digit, p.requirements.RequireDigit, "must contain a digit", "add digits"},
		{classes.special, p.requirements.RequireSpecial, "must contain a special character", "add special characters"},
	} {
		if c.present {
			res.Score++
			continue
		}
		if c.required {
			res.Feedback = append(res.Feedback, c.missing)
		} else {
			res.Suggestions = append(res.Suggestions, c.advice)
		}
	}

	// Deductions.
	lower := strings.ToLower(candidate)
	if _, isCommon := p.common[lower]; isCommon {
		res.Score = 0
		res.Feedback = append(res.Feedback, "is a commonly used password")
	}
	if containsPersonalInfo(lower, info) {
		res.Score--
		res.Suggestions = append(res.Suggestions, "avoid using parts of your name or email")
	}
	if hasRepeatedRun(candidate, 3) {
		res.Score--
		res.Suggestions = append(res.Suggestions, "avoid repeated characters")
	}
	if hasSequentialRun(lower, 3) {
		res.Score--
		res.Suggestions = append(res.Suggestions, "avoid sequential characters")
	}

	// Bonuses.
	if len(candidate) > 15 {
		res.Score++
	}
	if len(candidate) > 20 {
		res.Score++
	}
	if classes.upper && classes.lower && classes.digit && classes.special {
		res.Score++
	}

	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > scoreMax {
		res.Score = scoreMax
	}
	res.IsStrong = res.Score >= strongMinScore && len(res.Feedback) == 0
	return res
}

// Validate is the hard gate: it returns a [*PolicyViolationError] carrying
// the feedback list when any hard requirement fails, nil otherwise.
func (p *Policy) Validate(candidate string, info UserInfo) error {
	res := p.Score(candidate, info)
	if len(res.Feedback) > 0 {
		return &PolicyViolationError{Feedback: res.Feedback}
	}
	return nil
}

// PolicyViolationError reports the hard requirements a candidate failed.
type PolicyViolationError struct {
	Feedback []string
}

func (e *PolicyViolationError) Error() string {
	return "password policy violation: " + strings.Join(e.Feedback, "; ")
}

type runeClasses struct {
	upper, lower, digit, special bool
}

func classifyRunes(s string) runeClasses {
	var c runeClasses
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		default:
			c.special = true
		}
	}
	return c
}

// containsPersonalInfo reports whether any 4+ character window of the
// user's email local part or name appears in the lowercased candidate.
func containsPersonalInfo(lower string, info UserInfo) bool {
	const window = 4

	var tokens []string
	if local, _, ok := strings.Cut(info.Email, "@"); ok && local != "" {
		tokens = append(tokens, strings.ToLower(local))
	} else if info.Email != "" {
		tokens = append(tokens, strings.ToLower(info.Email))
	}
	for _, part := range strings.Fields(strings.ToLower(info.Name)) {
		tokens = append(tokens, part)
	}

	for _, token := range tokens {
		if len(token) < window {
			continue
		}
		for i := 0; i+window <= len(token); i++ {
			if strings.Contains(lower, token[i:i+window]) {
				return true
			}
		}
	}
	return false
}

func hasRepeatedRun(s string, runLen int) bool {
	run := 1
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
		prev = r
	}
	return false
}

// hasSequentialRun detects runs like "abc", "cba", "123", "321" of the
// given length over ASCII letters and digits.
func hasSequentialRun(lower string, runLen int) bool {
	if len(lower) < runLen {
		return false
	}
	bytes := []byte(lower)
	asc, desc := 1, 1
	for i := 1; i < len(bytes); i++ {
		prev, cur := bytes[i-1], bytes[i]
		if !isSequencible(prev) || !isSequencible(cur) || sameClass(prev, cur) == false {
			asc, desc = 1, 1
			continue
		}
		if cur == prev+1 {
			asc++
			desc = 1
		} else if cur == prev-1 {
			desc++
			asc = 1
		} else {
			asc, desc = 1, 1
		}
		if asc >= runLen || desc >= runLen {
			return true
		}
	}
	return false
}

func isSequencible(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func sameClass(a, b byte) bool {
	alpha := func(c byte) bool { return c >= 'a' && c <= 'z' }
	return alpha(a) == alpha(b)
}
