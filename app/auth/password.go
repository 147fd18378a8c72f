package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword 验证密码是否匹配哈希值
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Credentials 配置文件中的管理员账户，密码只保存哈希
type Credentials struct {
	username string
	hash     string
}

// NewCredentials 启动时哈希配置中的密码
func NewCredentials(username, password string) (*Credentials, error) {
	if username == "" || password == "" {
		return nil, errors.New("管理员账户配置不能为空，请在配置文件中设置 server.username 和 server.password")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("哈希密码失败: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Verify 校验用户名和密码
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	// 用户名错误时也执行一次哈希比较
	passOK := VerifyPassword(password, c.hash)
	return userOK && passOK
}
