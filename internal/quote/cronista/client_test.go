package cronista_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dolarprovider/internal/quote/cronista"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "https://www.cronista.com/MercadosOnline/moneda/ARSB/", req.URL.String())
			require.Equal(t, cronista.DefaultUserAgent, req.Header.Get("User-Agent"))
			return response(http.StatusOK, "<html></html>"), nil
		}).
		Times(1)

	// Act: fetch the blue dollar page
	client := cronista.NewClient(cronista.WithHTTPClient(httpClient))
	body, err := client.FetchPage(t.Context(), "ARSB")

	// Assert: the body is returned unchanged
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(body))
}

func TestWithBaseURLAndHeader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "http://localhost:8080/MercadosOnline/moneda/ARS/", req.URL.String())
			require.Equal(t, "bar", req.Header.Get("foo"))
			require.Equal(t, "test-agent", req.Header.Get("User-Agent"))
			return response(http.StatusOK, ""), nil
		}).
		Times(1)

	client := cronista.NewClient(
		cronista.WithHTTPClient(httpClient),
		cronista.WithBaseURL("http://localhost:8080/"),
		cronista.WithHeader(http.Header{"foo": []string{"bar"}}),
		cronista.WithUserAgent("test-agent"),
	)
	_, err := client.FetchPage(t.Context(), "ARS")
	require.NoError(t, err)
}

func TestFetchPage_ErrUnexpectedStatusCode(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: a 404 is not retried even with retries enabled
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusNotFound, "not here"), nil).
		Times(1)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient), cronista.WithRetries(3, time.Millisecond))
	body, err := client.FetchPage(t.Context(), "ARS")
	require.Error(t, err)
	require.Nil(t, body)

	var se *cronista.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusNotFound, se.Code)
	require.Equal(t, "not here", se.Body)
	require.False(t, se.Temporary())
}

func TestFetchPage_RetriesTemporaryErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(response(http.StatusServiceUnavailable, ""), nil),
		httpClient.EXPECT().Do(gomock.Any()).Return(response(http.StatusTooManyRequests, ""), nil),
		httpClient.EXPECT().Do(gomock.Any()).Return(response(http.StatusOK, "ok"), nil),
	)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient), cronista.WithRetries(2, time.Millisecond))
	body, err := client.FetchPage(t.Context(), "ARSMEP")
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}

func TestFetchPage_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusBadGateway, ""), nil).
		Times(2)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient), cronista.WithRetries(1, time.Millisecond))
	_, err := client.FetchPage(t.Context(), "ARSCONT")

	var se *cronista.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
}

func TestFetchPage_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, fmt.Errorf("connection refused")).
		Times(1)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient), cronista.WithRetries(3, time.Millisecond))
	body, err := client.FetchPage(t.Context(), "ARS")
	require.ErrorContains(t, err, "connection refused")
	require.Nil(t, body)
}

func TestFetchPage_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient), cronista.WithBaseURL(string([]rune{0x7f})))
	_, err := client.FetchPage(t.Context(), "ARS")
	require.ErrorContains(t, err, "creating request")
}

func TestFetchPage_ErrPageTooLarge(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, strings.Repeat("a", 2<<20+1)), nil).
		Times(1)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient))
	body, err := client.FetchPage(t.Context(), "ARS")
	require.ErrorIs(t, err, cronista.ErrPageTooLarge)
	require.Nil(t, body)
}

func TestFetchPage_BodyAtLimit(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, strings.Repeat("a", 2<<20)), nil).
		Times(1)

	client := cronista.NewClient(cronista.WithHTTPClient(httpClient))
	body, err := client.FetchPage(t.Context(), "ARS")
	require.NoError(t, err)
	require.Len(t, body, 2<<20)
}
