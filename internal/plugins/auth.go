package plugins

import "encoding/base64"

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func bearer(token string) string {
	return "Bearer " + token
}
