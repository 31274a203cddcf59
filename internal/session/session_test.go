package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SignVerify(t *testing.T) {
	assert := assert_.New(t)
	m := NewManager("secret")

	signed := m.Sign("abc")
	value, err := m.Verify(signed)
	assert.NoError(err)
	assert.Equal("abc", value)

	_, err = m.Verify("abc")
	assert.ErrorIs(err, ErrBadSignature)
	_, err = m.Verify(signed + "x")
	assert.ErrorIs(err, ErrBadSignature)
	_, err = NewManager("other").Verify(signed)
	assert.ErrorIs(err, ErrBadSignature)
}

func TestManager_Get(t *testing.T) {
	assert := assert_.New(t)
	m := NewManager("secret")

	w := httptest.NewRecorder()
	id := m.Get(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(id)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(CookieName, cookies[0].Name)
	assert.True(cookies[0].HttpOnly)

	// Same cookie, same session
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	assert.Equal(id, m.Get(w, r))
	assert.Empty(w.Result().Cookies())

	// Forged cookie gets a fresh session
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "someone-else.bogus"})
	w = httptest.NewRecorder()
	assert.NotEqual("someone-else", m.Get(w, r))
	assert.Len(w.Result().Cookies(), 1)
}

func TestManager_Middleware(t *testing.T) {
	m := NewManager("")
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ID(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert_.NotEmpty(t, seen)
}

func TestManager_State(t *testing.T) {
	assert := assert_.New(t)
	m := NewManager("secret")

	a, b := m.NewState("session-1"), m.NewState("session-1")
	assert.NotEqual(a, b)
	id, err := m.ParseState(a)
	assert.NoError(err)
	assert.Equal("session-1", id)

	_, err = m.ParseState(m.Sign("no-separator"))
	assert.ErrorIs(err, ErrBadSignature)
	_, err = m.ParseState("tampered")
	assert.ErrorIs(err, ErrBadSignature)
}
