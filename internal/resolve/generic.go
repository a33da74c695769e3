package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"linkchain/internal/decode"
	"linkchain/internal/extract"
	"linkchain/internal/httputil"
	"linkchain/internal/media"
)

// GenericExtractor resolves embed URLs for hosts the pipeline has no
// resolver for. It reports whether it could handle the URL.
type GenericExtractor interface {
	ResolveGeneric(ctx context.Context, rawURL, referer string, onSubtitle func(media.Subtitle), onStream func(media.StreamLink)) bool
}

// GenericFunc adapts a function to GenericExtractor.
type GenericFunc func(ctx context.Context, rawURL, referer string, onSubtitle func(media.Subtitle), onStream func(media.StreamLink)) bool

func (f GenericFunc) ResolveGeneric(ctx context.Context, rawURL, referer string, onSubtitle func(media.Subtitle), onStream func(media.StreamLink)) bool {
	return f(ctx, rawURL, referer, onSubtitle, onStream)
}

// UpstreamRejection means the generic extractor could not handle a host.
type UpstreamRejection struct {
	URL    string
	Host   string
	Reason string
}

func (e *UpstreamRejection) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("generic extractor rejected %s: %s", e.Host, e.Reason)
	}
	return fmt.Sprintf("generic extractor rejected %s", e.Host)
}

// logFailure logs err at the scope of log with the fields of its kind.
func logFailure(log logrus.FieldLogger, err error) {
	var (
		fe *httputil.FetchError
		de *decode.Error
		ee *extract.ExtractionError
		ur *UpstreamRejection
	)
	switch {
	case errors.Is(err, context.Canceled):
		log.WithError(err).Debug("canceled")
	case errors.As(err, &fe):
		log.WithFields(logrus.Fields{
			"kind":      "fetch",
			"url":       fe.URL,
			"status":    fe.StatusCode,
			"challenge": fe.Challenge,
			"timeout":   fe.Timeout(),
		}).WithError(err).Warn("candidate failed")
	case errors.As(err, &de):
		log.WithFields(logrus.Fields{"kind": "decode", "scheme": de.Scheme}).WithError(err).Warn("candidate failed")
	case errors.As(err, &ee):
		log.WithFields(logrus.Fields{"kind": "extraction", "extractor": ee.Strategy}).WithError(err).Warn("candidate failed")
	case errors.As(err, &ur):
		log.WithFields(logrus.Fields{"kind": "upstream", "host": ur.Host}).WithError(err).Info("candidate failed")
	default:
		log.WithField("kind", "unknown").WithError(err).Warn("candidate failed")
	}
}
