package messaging

import "messaging-service/internal/errs"

func notFound() error {
	return errs.NotFound("conversation not found")
}

func forbidden() error {
	return errs.PermissionDenied("user is not a participant of this conversation")
}

func invalid(field, message string) error {
	return errs.InvalidArgument(field, message)
}

func internal(message string, cause error) error {
	return errs.Internal(message, cause)
}
