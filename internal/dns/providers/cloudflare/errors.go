package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"go_subdns/internal/dnstypes"

	cf "github.com/cloudflare/cloudflare-go"
)

// Cloudflare API error codes meaning the addressed record or id does not exist
var notFoundCodes = map[int]bool{
	81044: true, // Record does not exist
	81043: true, // Record not found
	7003:  true, // Could not route, object identifier is invalid
}

type codedError interface {
	ErrorCodes() []int
}

// classify is the single place mapping SDK errors to dnstypes.ProviderError
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dnstypes.AsProviderError(err); ok {
		return err
	}
	msg := fmt.Sprintf("%s: %v", op, err)

	var notFound *cf.NotFoundError
	if errors.As(err, &notFound) {
		return dnstypes.NewProviderError(dnstypes.ErrorKindNotFound, firstCode(notFound.ErrorCodes()), msg, err)
	}

	var apiErr *cf.Error
	if errors.As(err, &apiErr) {
		code := firstCode(apiErr.ErrorCodes)
		if apiErr.StatusCode == http.StatusNotFound || hasNotFoundCode(apiErr.ErrorCodes) {
			return dnstypes.NewProviderError(dnstypes.ErrorKindNotFound, code, msg, err)
		}
		if apiErr.StatusCode >= http.StatusInternalServerError {
			return dnstypes.NewProviderError(dnstypes.ErrorKindOther, code, msg, err)
		}
		return dnstypes.NewProviderError(dnstypes.ErrorKindRejected, code, msg, err)
	}

	var coded codedError
	if errors.As(err, &coded) {
		codes := coded.ErrorCodes()
		if hasNotFoundCode(codes) {
			return dnstypes.NewProviderError(dnstypes.ErrorKindNotFound, firstCode(codes), msg, err)
		}
		return dnstypes.NewProviderError(dnstypes.ErrorKindRejected, firstCode(codes), msg, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dnstypes.NewProviderError(dnstypes.ErrorKindNetwork, 0, msg, err)
	}

	return dnstypes.NewProviderError(dnstypes.ErrorKindOther, 0, msg, err)
}

func hasNotFoundCode(codes []int) bool {
	for _, c := range codes {
		if notFoundCodes[c] {
			return true
		}
	}
	return false
}

func firstCode(codes []int) int {
	if len(codes) == 0 {
		return 0
	}
	return codes[0]
}
