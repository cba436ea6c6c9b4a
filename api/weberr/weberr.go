package weberr

import "errors"

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

func WithFields(fields map[string]any) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

// Fields collects the log fields attached anywhere in err's chain.
func Fields(err error) (map[string]any, bool) {
	var fe *fieldsError
	if !errors.As(err, &fe) {
		return nil, false
	}

	out := make(map[string]any)
	for fe != nil {
		for k, v := range fe.fields {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
		next := fe.error
		fe = nil
		errors.As(next, &fe)
	}
	return out, true
}

func Response(err error) (body any, status int, ok bool) {
	var re *responseError
	if errors.As(err, &re) {
		return re.body, re.status, true
	}
	return nil, 0, false
}

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Unwrap() error { return e.error }

type responseError struct {
	error
	body   any
	status int
}

func (e *responseError) Unwrap() error { return e.error }
