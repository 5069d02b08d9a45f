package dispatch

// SelfValidator is implemented by request types that validate themselves.
type SelfValidator interface {
	Validate() error
}

// Validator validates any request.
type Validator interface {
	Validate(req any) error
}

// Validate returns a request filter that checks the request DTO: constraint
// tags (minLength, maxLength, pattern, enum, minimum, maximum, minItems,
// maxItems) first, then SelfValidator, then each of validators in order.
// The first failure fails the request; constraint violations are reported
// together as a 400 ProblemDetail.
func Validate(validators ...Validator) RequestFilter {
	return RequestFilterFunc(func(_ *RequestContext, dto any) (bool, error) {
		if err := validateConstraints(dto); err != nil {
			return false, err
		}
		if sv, ok := dto.(SelfValidator); ok {
			if err := sv.Validate(); err != nil {
				return false, err
			}
		}
		for _, v := range validators {
			if err := v.Validate(dto); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}
