package service

import (
	"crypto/subtle"

	"speedtest/config"
)

// Authenticator 管理员凭据校验
type Authenticator interface {
	Authenticate(username, password string) bool
}

// StaticAuthenticator 使用配置中的用户名密码校验
type StaticAuthenticator struct {
	username string
	password string
}

// NewStaticAuthenticator 创建静态凭据校验器，密码为空时拒绝所有登录
func NewStaticAuthenticator(admin config.Admin) *StaticAuthenticator {
	return &StaticAuthenticator{
		username: admin.Username,
		password: admin.Password,
	}
}

func (a *StaticAuthenticator) Authenticate(username, password string) bool {
	if a.password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password))
	return userOK&passOK == 1
}
