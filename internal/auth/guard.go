package auth

// Owned は所有者を持つリソース（投稿・コメント）です。
type Owned interface {
	Owner() string
}

// AuthorizeMutation は認証済みユーザーがリソースの所有者かどうかを判定します。
// 所有者でなければ FORBIDDEN を返します。副作用はありません。
func AuthorizeMutation(ac *Context, resource Owned) error {
	if ac == nil || ac.Identity == nil {
		return ErrMissingCredential
	}
	if ac.Identity.ID != resource.Owner() {
		return ForbiddenError("このリソースを変更する権限がありません")
	}
	return nil
}
