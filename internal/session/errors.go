package session

// ReadError reports a failure receiving from the inbound stream.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "inbound read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }
func (e *ReadError) Cause() error  { return e.Err }

// WriteError reports a failure sending to the outbound stream.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "outbound write: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }
func (e *WriteError) Cause() error  { return e.Err }
