package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"dvrestore/internal/dv"
)

// Threshold defaults. A rule that changes more frames than this is almost
// always aimed at the wrong range.
const (
	DefaultMaxChangedProportion = 0.05
	DefaultMaxConsecutive       = 3
)

const mostCommon = "most_common"

// Thresholds stop a rule that rewrites too much of a tape.
type Thresholds struct {
	// MaxChangedProportion is the largest share of the rule's frames it may change.
	MaxChangedProportion float64
	// MaxConsecutive fails a rule once this many frames in a row changed.
	// Zero disables the check.
	MaxConsecutive int
}

// DefaultThresholds returns the package defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxChangedProportion: DefaultMaxChangedProportion, MaxConsecutive: DefaultMaxConsecutive}
}

type thresholdsFile struct {
	MaxChangedProportion *float64 `toml:"max_changed_proportion"`
	MaxConsecutive       *int     `toml:"max_consecutive_modifications"`
}

func (f thresholdsFile) over(base Thresholds) (Thresholds, error) {
	if f.MaxChangedProportion != nil {
		base.MaxChangedProportion = *f.MaxChangedProportion
	}
	if f.MaxConsecutive != nil {
		base.MaxConsecutive = *f.MaxConsecutive
	}
	if base.MaxChangedProportion < 0 || base.MaxChangedProportion > 1 {
		return base, fmt.Errorf("max_changed_proportion %v must be between 0 and 1", base.MaxChangedProportion)
	}
	if base.MaxConsecutive < 0 {
		return base, fmt.Errorf("max_consecutive_modifications %d must not be negative", base.MaxConsecutive)
	}
	return base, nil
}

type ruleFile struct {
	Type         string         `toml:"type"`
	StartFrame   int64          `toml:"start_frame"`
	EndFrame     *int64         `toml:"end_frame"`
	Column       string         `toml:"column"`
	Value        string         `toml:"value"`
	InitialValue any            `toml:"initial_value"`
	LowerBound   *int64         `toml:"lower_bound"`
	UpperBound   *int64         `toml:"upper_bound"`
	Step         *int64         `toml:"step"`
	Thresholds   thresholdsFile `toml:"thresholds"`
}

type rulesFile struct {
	Thresholds thresholdsFile `toml:"thresholds"`
	Rules      []ruleFile     `toml:"rules"`
}

// Rules is an ordered list of transformations.
type Rules struct {
	Rules []Rule
}

// LoadRules reads a rules file from path.
func LoadRules(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, invalid("open rules", err)
	}
	defer f.Close()
	rules, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes a TOML rules document. Unknown keys are rejected so a
// misspelled threshold cannot silently fall back to its default.
func ParseRules(r io.Reader) (*Rules, error) {
	var doc rulesFile
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, invalid("parse rules: "+strict.String(), nil)
		}
		return nil, invalid("parse rules", err)
	}
	global, err := doc.Thresholds.over(DefaultThresholds())
	if err != nil {
		return nil, invalid("thresholds", err)
	}
	out := &Rules{}
	for i, rf := range doc.Rules {
		rule, err := rf.build(global)
		if err != nil {
			return nil, invalid(fmt.Sprintf("rule %d (%s)", i+1, rf.Type), err)
		}
		out.Rules = append(out.Rules, rule)
	}
	return out, nil
}

func (rf ruleFile) build(global Thresholds) (Rule, error) {
	limits, err := rf.Thresholds.over(global)
	if err != nil {
		return nil, err
	}
	span := frameSpan{start: rf.StartFrame, end: -1}
	if rf.EndFrame != nil {
		span.end = *rf.EndFrame
	}
	if span.start < 0 || (span.end >= 0 && span.end < span.start) {
		return nil, fmt.Errorf("bad frame range %s", span)
	}
	base := ruleBase{span: span, limits: limits}

	switch strings.TrimSpace(rf.Type) {
	case "write_constant":
		col, ok := columns[rf.Column]
		if !ok {
			return nil, fmt.Errorf("unsupported column %q", rf.Column)
		}
		value := strings.TrimSpace(rf.Value)
		if value == "" {
			value = mostCommon
		}
		return &writeConstant{ruleBase: base, column: col, value: value}, nil

	case "renumber_title_timecodes":
		r := &renumberTimecodes{ruleBase: base}
		switch v := rf.InitialValue.(type) {
		case nil:
		case string:
			r.initial = strings.TrimSpace(v)
		default:
			return nil, fmt.Errorf("initial_value must be a timecode string, got %v", v)
		}
		return r, nil

	case "renumber_arbitrary_bits":
		r := &renumberArbitrary{ruleBase: base}
		if r.lower, err = nibbleOr(rf.LowerBound, 0x0, "lower_bound"); err != nil {
			return nil, err
		}
		if r.upper, err = nibbleOr(rf.UpperBound, 0xB, "upper_bound"); err != nil {
			return nil, err
		}
		if r.step, err = nibbleOr(rf.Step, 0x1, "step"); err != nil {
			return nil, err
		}
		switch v := rf.InitialValue.(type) {
		case nil:
		case int64:
			if v < 0 || v > 0xF {
				return nil, fmt.Errorf("initial_value %d outside 0x0-0xF", v)
			}
			n := uint8(v)
			r.initial = &n
		default:
			return nil, fmt.Errorf("initial_value must be an integer, got %v", v)
		}
		if r.lower > r.upper {
			return nil, fmt.Errorf("lower_bound 0x%X above upper_bound 0x%X", r.lower, r.upper)
		}
		if int(r.step) > int(r.upper-r.lower)+1 {
			return nil, fmt.Errorf("step 0x%X larger than the range 0x%X-0x%X", r.step, r.lower, r.upper)
		}
		if r.initial != nil && (*r.initial < r.lower || *r.initial > r.upper) {
			return nil, fmt.Errorf("initial_value 0x%X outside 0x%X-0x%X", *r.initial, r.lower, r.upper)
		}
		return r, nil

	case "":
		return nil, errors.New("missing type")
	default:
		return nil, fmt.Errorf("unknown rule type %q", rf.Type)
	}
}

func nibbleOr(v *int64, def uint8, name string) (uint8, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 0xF {
		return 0, fmt.Errorf("%s %d outside 0x0-0xF", name, *v)
	}
	return uint8(*v), nil
}

// column is a CSV field a write_constant rule can target. Values travel as
// their CSV text so histograms and comparisons need no per-field code.
type column struct {
	name string
	get  func(Info) (string, bool)
	set  func(dv.System, *Info, string) error
}

var columns = map[string]column{
	"arbitrary_bits": {
		name: "arbitrary_bits",
		get:  func(i Info) (string, bool) { return hexNibble(i.Arbitrary), true },
		set: func(_ dv.System, i *Info, text string) error {
			v, err := parseNibble(text, 0x0F)
			if err != nil {
				return err
			}
			i.Arbitrary = v
			return nil
		},
	},
	"track_application_id": {
		name: "track_application_id",
		get: func(i Info) (string, bool) {
			if !i.HasAPT {
				return "", false
			}
			return hexNibble(i.APT), true
		},
		set: func(_ dv.System, i *Info, text string) error {
			v, err := parseNibble(text, 0x07)
			if err != nil {
				return err
			}
			i.APT, i.HasAPT = v, true
			return nil
		},
	},
	"title_timecode": {
		name: "title_timecode",
		get: func(i Info) (string, bool) {
			if !i.HasTimecode {
				return "", false
			}
			return i.Timecode.String(), true
		},
		set: func(system dv.System, i *Info, text string) error {
			tc, err := dv.ParseTimecodeText(system, text)
			if err != nil {
				return err
			}
			tc.ColorFrame = i.Timecode.ColorFrame
			i.Timecode, i.HasTimecode = tc, true
			return nil
		},
	},
}
