package service

import (
	"fmt"

	"bwupload/failure"
)

// Response is the JSON body returned by every transport.
type Response struct {
	Message string  `json:"message"`
	Error   string  `json:"error,omitempty"`
	Upload  *Upload `json:"upload,omitempty"`
}

func Succeeded(up *Upload) Response {
	return Response{
		Message: fmt.Sprintf("Successfully uploaded and processed image '%s'.", up.Filename),
		Upload:  up,
	}
}

// Failed hides wrapped causes of internal errors from the caller.
func Failed(fe *failure.Error) Response {
	return Response{Message: fe.Message, Error: fe.Kind.String()}
}
