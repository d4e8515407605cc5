package transport

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBadInput        = "TRANSPORT_BAD_INPUT"
	TextCodeExternalFailure = "TRANSPORT_EXTERNAL_FAILURE"
	TextCodeInternal        = "TRANSPORT_INTERNAL_ERROR"
)

var textCodes = map[goerrors.Category]string{
	goerrors.CategoryBadInput:   TextCodeBadInput,
	goerrors.CategoryValidation: TextCodeBadInput,
	goerrors.CategoryExternal:   TextCodeExternalFailure,
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return envelope(goerrors.New(message, category), category, code, metadata)
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	return envelope(goerrors.Wrap(source, category, message), category, code, metadata)
}

func envelope(err *goerrors.Error, category goerrors.Category, code int, metadata map[string]any) *goerrors.Error {
	textCode, ok := textCodes[category]
	if !ok {
		textCode = TextCodeInternal
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
