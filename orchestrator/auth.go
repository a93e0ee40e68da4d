// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// adminAuth guards mutating admin endpoints with an HMAC-signed bearer
// token. With no secret configured the middleware passes everything
// through, which keeps local development friction-free.
type adminAuth struct {
	secret []byte
}

func newAdminAuth(secret string) *adminAuth {
	if secret == "" {
		return &adminAuth{}
	}
	return &adminAuth{secret: []byte(secret)}
}

// middleware validates the Authorization header when a secret is set.
func (a *adminAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			http.Error(w, `{"error":{"kind":"unauthorized","message":"missing bearer token"}}`,
				http.StatusUnauthorized)
			return
		}

		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil {
			http.Error(w, `{"error":{"kind":"unauthorized","message":"invalid token"}}`,
				http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
