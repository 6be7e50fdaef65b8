package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var codeKinds = map[string]ErrorKind{
	// throttling and server side failures
	"Throttling":                 KindTransport,
	"ThrottlingException":        KindTransport,
	"RequestThrottled":           KindTransport,
	"SlowDown":                   KindTransport,
	"RequestTimeout":             KindTransport,
	"RequestTimeTooSkewed":       KindTransport,
	"InternalError":              KindTransport,
	"ServiceUnavailable":         KindTransport,
	"ServiceException":           KindTransport,
	"InternalServiceException":   KindTransport,
	"XMinioServerNotInitialized": KindTransport,
	"XAmzContentSHA256Mismatch":  KindTransport,

	"InvalidAccessKeyId":           KindAuth,
	"SignatureDoesNotMatch":        KindAuth,
	"ExpiredToken":                 KindAuth,
	"InvalidToken":                 KindAuth,
	"TokenRefreshRequired":         KindAuth,
	"AuthorizationHeaderMalformed": KindAuth,
	"MissingSecurityHeader":        KindAuth,
	"InvalidSecurity":              KindAuth,

	"AccessDenied":       KindPermission,
	"Forbidden":          KindPermission,
	"AllAccessDisabled":  KindPermission,
	"AccountProblem":     KindPermission,
	"InvalidObjectState": KindPermission,

	"NoSuchKey":     KindNotFound,
	"NotFound":      KindNotFound,
	"NoSuchBucket":  KindNotFound,
	"NoSuchVersion": KindNotFound,
	"NoSuchUpload":  KindNotFound,

	"QuotaExceeded":                  KindQuota,
	"ServiceQuotaExceeded":           KindQuota,
	"TooManyBuckets":                 KindQuota,
	"EntityTooLarge":                 KindQuota,
	"XMinioStorageFull":              KindQuota,
	"XMinioAdminBucketQuotaExceeded": KindQuota,

	"PreconditionFailed": KindPrecondition,
	"InvalidBucketName":  KindPrecondition,
	"InvalidArgument":    KindPrecondition,
	"InvalidRequest":     KindPrecondition,
	"BucketNotEmpty":     KindPrecondition,
	"InvalidRange":       KindPrecondition,
}

// kindFromCode maps a service error code, falling back to the HTTP status.
func kindFromCode(code string, status int) ErrorKind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return kindFromStatus(status)
}

func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusPreconditionFailed, status == http.StatusConflict,
		status == http.StatusBadRequest, status == http.StatusRequestedRangeNotSatisfiable:
		return KindPrecondition
	case status == http.StatusInsufficientStorage, status == http.StatusRequestEntityTooLarge:
		return KindQuota
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindTransport
	}
	return KindUnknown
}

// classifyNetwork handles failures that never reached the service.
func classifyNetwork(err error) (ErrorKind, bool) {
	if errors.Is(err, context.Canceled) {
		return KindUnknown, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport, true
	}
	msg := err.Error()
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "EOF") {
		return KindTransport, true
	}
	return "", false
}

// classifyS3Error maps an aws-sdk-go-v2 error onto the gateway taxonomy.
func classifyS3Error(err error) ErrorKind {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return KindNotFound
	}

	status := 0
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind := kindFromCode(apiErr.ErrorCode(), status); kind != KindUnknown {
			return kind
		}
	}
	if status != 0 {
		if kind := kindFromStatus(status); kind != KindUnknown {
			return kind
		}
	}
	if kind, ok := classifyNetwork(err); ok {
		return kind
	}
	return KindUnknown
}

func wrapS3Error(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(classifyS3Error(err), op, bucket, key, err)
}
