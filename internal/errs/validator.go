package errs

// Validator collects field errors before turning them into a single
// invalid_argument Error.
type Validator struct {
	fields map[string]string
}

func NewValidator() *Validator {
	return &Validator{fields: map[string]string{}}
}

// Check records message for field when ok is false. The first message per
// field wins.
func (v *Validator) Check(ok bool, field, message string) {
	if ok {
		return
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = message
	}
}

func (v *Validator) Valid() bool {
	return len(v.fields) == 0
}

func (v *Validator) AsError() error {
	if v.Valid() {
		return nil
	}
	return &Error{Kind: KindInvalidArgument, Message: "validation failed", Fields: v.fields}
}
