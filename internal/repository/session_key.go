package repository

import (
	"crypto/sha256"
	"encoding/hex"
)

// sessionKey はセッショントークンから保存用のキーを導出する。
// トークンはBearer認証の秘密値のため、DBやキャッシュには平文で置かない。
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
