package uploader

import (
	"fmt"
	"strings"
)

// TransmissionFailedError reports that one asset could not be delivered
// to the relay within the attempt budget. Certificates already earned by
// other assets stay cached on the session, so a later Transmit only
// retries the failed asset.
type TransmissionFailedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *TransmissionFailedError) Error() string {
	return fmt.Sprintf("uploader: transmit %s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *TransmissionFailedError) Unwrap() error { return e.Err }

// CertificationPreconditionError reports a Certify call made while some
// assets still lack a relay certificate.
type CertificationPreconditionError struct {
	Missing []string
}

func (e *CertificationPreconditionError) Error() string {
	return "uploader: cannot certify, missing certificates for " + strings.Join(e.Missing, ", ")
}

// CertificationSubmissionError reports a partial certification: some
// assets certified on chain, the listed ones did not.
type CertificationSubmissionError struct {
	Uncertified []string
	Err         error
}

func (e *CertificationSubmissionError) Error() string {
	return fmt.Sprintf("uploader: certification incomplete for %s: %v", strings.Join(e.Uncertified, ", "), e.Err)
}

func (e *CertificationSubmissionError) Unwrap() error { return e.Err }
