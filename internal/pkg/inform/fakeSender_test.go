package inform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeEmailSender(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()
	c := viper.New()
	c.Set("smtp.fakeUrl", srv.URL)
	s, err := NewFakeEmailSender(c)
	require.Nil(t, err)
	em := email.NewEmail()
	em.Subject = "olia"

	err = s.Send(em)

	require.Nil(t, err)
	assert.Equal(t, "olia", got["Subject"])
}

func TestFakeEmailSender_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := viper.New()
	c.Set("smtp.fakeUrl", srv.URL)
	s, err := NewFakeEmailSender(c)
	require.Nil(t, err)

	assert.NotNil(t, s.Send(email.NewEmail()))
}

func TestNewFakeEmailSender_NoURL(t *testing.T) {
	_, err := NewFakeEmailSender(viper.New())
	assert.NotNil(t, err)
}
