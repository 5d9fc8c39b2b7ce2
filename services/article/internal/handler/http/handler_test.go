package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/article/internal/domain"
	"github.com/horike37/serverless-application/services/article/internal/sanitize"
	"github.com/horike37/serverless-application/services/article/internal/service"
)

type mockArticleRepo struct {
	mock.Mock
}

func (m *mockArticleRepo) GetInfo(ctx context.Context, id string) (*domain.ArticleInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ArticleInfo), args.Error(1)
}

func (m *mockArticleRepo) UpdateDraft(ctx context.Context, u *domain.DraftUpdate) (*domain.ArticleInfo, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ArticleInfo), args.Error(1)
}

func (m *mockArticleRepo) ListPopular(ctx context.Context, limit, offset int) ([]domain.PopularArticle, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PopularArticle), args.Error(1)
}

const (
	articleID       = "abcdefghijkl"
	draftsPath      = "/api/v1/me/articles/" + articleID + "/drafts"
	verifiedToken   = "verified-token"
	unverifiedToken = "unverified-token"
)

func boolPtr(b bool) *bool { return &b }

func testValidator() middleware.TokenValidator {
	return middleware.TokenValidatorFunc(func(_ context.Context, token string) (*middleware.Claims, error) {
		switch token {
		case verifiedToken:
			return &middleware.Claims{UserID: "alice", Verification: verification.Claims{
				PhoneNumberVerified: boolPtr(true), EmailVerified: boolPtr(true),
			}}, nil
		case unverifiedToken:
			return &middleware.Claims{UserID: "alice", Verification: verification.Claims{
				PhoneNumberVerified: boolPtr(false), EmailVerified: boolPtr(true),
			}}, nil
		default:
			return nil, errors.New("bad token")
		}
	})
}

func newTestRouter(t *testing.T) (http.Handler, *mockArticleRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := &mockArticleRepo{}
	router := NewRouter(RouterConfig{
		Articles:       service.NewArticleService(repo, sanitize.New(), logger),
		TokenValidator: testValidator(),
		Gate:           verification.Gate{AllowLegacySessions: true},
		Health:         health.NewHandler("article-service"),
		ServiceName:    "article-service",
		Logger:         logger,
	})
	return router, repo
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestUpdateDraft(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.On("GetInfo", mock.Anything, articleID).
		Return(&domain.ArticleInfo{ArticleID: articleID, UserID: "alice", Status: domain.StatusDraft}, nil)
	repo.On("UpdateDraft", mock.Anything, mock.MatchedBy(func(u *domain.DraftUpdate) bool {
		return u.Title == "Title" &&
			strings.HasPrefix(u.Body, "<p>body<a ") &&
			!strings.Contains(u.Body, "onclick")
	})).Return(&domain.ArticleInfo{ArticleID: articleID, UserID: "alice", Status: domain.StatusDraft, Title: "Title"}, nil)

	rec := do(t, router, http.MethodPut, draftsPath, verifiedToken, map[string]string{
		"title": "Title",
		"body":  `<p onclick="x()">body<a href="https://example.com">link</a></p>`,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data domain.ArticleInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Title", resp.Data.Title)
	repo.AssertExpectations(t)
}

func TestUpdateDraft_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   any
		status int
		code   string
	}{
		{name: "no token", body: map[string]string{"body": "x"}, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "unverified phone", token: unverifiedToken, body: map[string]string{"body": "x"}, status: http.StatusForbidden, code: "NOT_VERIFIED_USER"},
		{name: "missing body", token: verifiedToken, body: map[string]string{"title": "t"}, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "malformed json", token: verifiedToken, body: `{"body":`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, repo := newTestRouter(t)

			rec := do(t, router, http.MethodPut, draftsPath, tt.token, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			repo.AssertNotCalled(t, "GetInfo", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateDraft_BadArticleID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPut, "/api/v1/me/articles/short/drafts", verifiedToken, map[string]string{"body": "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestUpdateDraft_NotOwned(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.On("GetInfo", mock.Anything, articleID).
		Return(&domain.ArticleInfo{ArticleID: articleID, UserID: "bob", Status: domain.StatusDraft}, nil)

	rec := do(t, router, http.MethodPut, draftsPath, verifiedToken, map[string]string{"body": "x"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDraft_RejectsNonJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, draftsPath, bytes.NewBufferString("body=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+verifiedToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestListPopular(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.On("ListPopular", mock.Anything, 2, 2).Return([]domain.PopularArticle{
		{ArticleInfo: domain.ArticleInfo{ArticleID: "aaaaaaaaaaaa", Status: domain.StatusPublic}, Score: 9},
	}, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/articles/popular?limit=2&page=2", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	var resp struct {
		Data []domain.PopularArticle `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(9), resp.Data[0].Score)
}

func TestListPopular_InvalidPaging(t *testing.T) {
	for _, q := range []string{"limit=0", "limit=101", "limit=ten", "page=0"} {
		t.Run(q, func(t *testing.T) {
			router, repo := newTestRouter(t)

			rec := do(t, router, http.MethodGet, "/api/v1/articles/popular?"+q, "", nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
			repo.AssertNotCalled(t, "ListPopular", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestListPopular_StoreFailure(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.On("ListPopular", mock.Anything, 20, 0).Return(nil, apperrors.Internal(errors.New("db down")))

	rec := do(t, router, http.MethodGet, "/api/v1/articles/popular", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
