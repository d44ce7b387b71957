package fakeweb

import "fmt"

// DefaultBody is served by registrations that do not specify a body.
const DefaultBody = "You got stubbed!"

type (
	// VerifyFunc inspects the request a stubbed connection would have sent.
	// A non-nil error (or a panic) fails the enclosing Open.
	VerifyFunc func(RequestDescriptor) error

	// ResponseSpec is the canned response of a registration.
	ResponseSpec struct {
		// StatusCode defaults to 200.
		StatusCode int
		// Headers are "Name: value" lines appended, in order, after the
		// synthesized response headers.
		Headers []string
		// Body defaults to DefaultBody when nil. A non-nil empty body is
		// served as is.
		Body []byte
	}

	// Registration maps a URL to a canned response.
	Registration struct {
		Method   string
		URL      string
		Response ResponseSpec
		Verify   VerifyFunc
	}
)

func (s ResponseSpec) withDefaults() ResponseSpec {
	out := ResponseSpec{
		StatusCode: s.StatusCode,
		Headers:    append([]string(nil), s.Headers...),
	}
	if out.StatusCode == 0 {
		out.StatusCode = 200
	}
	if s.Body == nil {
		out.Body = []byte(DefaultBody)
	} else {
		out.Body = append([]byte{}, s.Body...)
	}
	return out
}

// verify runs the registration hook, turning panics into errors.
func (r Registration) verify(d RequestDescriptor) (err error) {
	if r.Verify == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = &verifyError{cause: fmt.Errorf("panic: %v", p)}
		}
	}()
	if verr := r.Verify(d); verr != nil {
		return &verifyError{cause: verr}
	}
	return nil
}
