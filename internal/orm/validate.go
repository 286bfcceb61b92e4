package orm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks rec against the table schema and returns a cleaned copy
// holding native values for declared columns only. On create, absent
// fields with a default receive it; on update, absent fields are left
// alone and defaults are never applied.
func (d *DB) Validate(table string, rec Record, isUpdate bool) (Record, error) {
	t, ok := d.reg.Get(table)
	if !ok {
		return nil, modelNotFound(table)
	}
	return validateRecord(t, rec, isUpdate)
}

func validateRecord(t *Table, rec Record, isUpdate bool) (Record, error) {
	verr := &ValidationError{Table: t.Name}
	clean := Record{}

	for _, c := range t.Columns {
		v, present := rec[c.Name]
		absent := !present || v == nil
		blank := absent || v == ""

		if isUpdate {
			if !present {
				continue
			}
			if v == nil {
				if c.Required {
					verr.add(c.Name, "%s cannot be null", c.Name)
				} else {
					clean[c.Name] = nil
				}
				continue
			}
			if c.Required && v == "" {
				verr.add(c.Name, "%s is required", c.Name)
				continue
			}
		} else {
			switch {
			case absent && c.hasDefault():
				// Defaults are held to the same constraints as input.
				v = c.defaultValue()
			case blank && c.Required && c.Type != AutoID:
				verr.add(c.Name, "%s is required", c.Name)
				continue
			case absent:
				continue
			}
		}

		val, problems := checkValue(c, v)
		if len(problems) > 0 {
			for _, p := range problems {
				verr.add(c.Name, "%s", p)
			}
			continue
		}
		clean[c.Name] = val
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return clean, nil
}

// checkValue converts v to the native form of c's type and reports every
// violated constraint. The converted value is returned even on failure.
func checkValue(c Column, v any) (any, []string) {
	if v == nil {
		return nil, nil
	}

	var problems []string
	fail := func(msg string) { problems = append(problems, msg) }
	val := v

	switch c.Type {
	case Email:
		s, ok := v.(string)
		if !ok || !emailRegex.MatchString(s) {
			fail(c.Name + " must be a valid email")
		}

	case String, Text:
		s, ok := toText(v).(string)
		if !ok {
			fail(c.Name + " must be a string")
		} else {
			val = s
		}

	case Integer, AutoID:
		n, ok := parseInt(v)
		if !ok {
			fail(c.Name + " must be an integer")
		} else {
			val = n
		}

	case Float:
		f, ok := parseFloat(v)
		if !ok {
			fail(c.Name + " must be a number")
		} else {
			val = f
		}

	case Boolean:
		b, ok := parseBool(v)
		if !ok {
			fail(c.Name + " must be a boolean")
		} else {
			val = b
		}

	case JSON:
		if _, ok := v.(string); !ok {
			if _, err := json.Marshal(v); err != nil {
				fail(c.Name + " must be valid JSON")
			}
		}

	case Timestamp, Date, Time:
		switch v.(type) {
		case string, time.Time, *time.Time:
		default:
			fail(c.Name + " must be a " + c.Type.String() + " string")
		}

	case Blob:
		switch v.(type) {
		case []byte, string:
		default:
			fail(c.Name + " must be binary data")
		}
	}

	if len(problems) > 0 {
		return val, problems
	}

	if c.Type.IsText() {
		s, _ := val.(string)
		n := utf8.RuneCountInString(s)
		if c.MaxLength != nil && n > *c.MaxLength {
			fail(fmt.Sprintf("%s exceeds max length of %d", c.Name, *c.MaxLength))
		}
		if c.MinLength != nil && n < *c.MinLength {
			fail(fmt.Sprintf("%s must be at least %d characters", c.Name, *c.MinLength))
		}
	}

	if c.Type.IsNumeric() {
		f, _ := parseFloat(val)
		if c.Min != nil && f < *c.Min {
			fail(fmt.Sprintf("%s must be at least %g", c.Name, *c.Min))
		}
		if c.Max != nil && f > *c.Max {
			fail(fmt.Sprintf("%s must be at most %g", c.Name, *c.Max))
		}
	}

	return val, problems
}
