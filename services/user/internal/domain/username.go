package domain

import "strings"

// reservedUserIDs cannot be registered as native user ids since they
// collide with site paths.
var reservedUserIDs = func() map[string]struct{} {
	names := []string{
		"about", "account", "activity", "add", "admin", "all", "alpha", "analysis", "api",
		"app", "archive", "article", "asct", "asset", "atom", "auth", "balancer-manager",
		"beta", "blog", "book", "bookmark", "bot", "bug", "business", "calendar", "call",
		"captcha", "career", "cart", "case", "category", "cgi", "cgi-bin", "code",
		"comment", "community", "company", "config", "connect", "contact", "contest",
		"contribute", "corp", "count", "create", "css", "dashboard", "data", "default",
		"delete", "design", "destroy", "dev", "developer", "diagram", "diary", "dict",
		"dictionary", "die", "dir", "dist", "doc", "download", "edit", "else", "empty",
		"end", "entry", "error", "eval", "event", "exit", "explore", "faq", "feature",
		"feed", "file", "find", "first", "flash", "forgot", "form", "forum", "friend",
		"game", "get", "gift", "graph", "group", "guest", "help", "home", "howto", "icon",
		"image", "img", "index", "info", "information", "inquiry", "issue", "item",
		"javascript", "join", "json", "jump", "language", "last", "ldap-status", "legal",
		"license", "log", "login", "logout", "mail", "maintenance", "manual", "master",
		"member", "message", "mobile", "msg", "nan", "navi", "navigation", "new", "news",
		"notify", "null", "off", "offer", "official", "old", "order", "organization",
		"out", "owner", "page", "password", "phone", "photo", "plan", "policy", "popular",
		"portal", "post", "premium", "press", "price", "privacy", "private", "product",
		"profile", "project", "public", "purpose", "put", "query", "ranking", "read",
		"recent", "recruit", "register", "release", "remove", "report", "repository",
		"req", "request", "reset", "roc", "root", "rss", "rule", "sag", "school", "script",
		"search", "secure", "security", "select", "self", "server-info", "server-status",
		"service", "session", "setting", "share", "shop", "show", "signin", "signout",
		"signup", "site", "sitemap", "source", "spec", "special", "src", "start", "state",
		"static", "status", "store", "style", "stylesheet", "support", "svn", "swf",
		"switch", "sys", "system", "tag", "term", "test", "theme", "then", "thread",
		"tool", "top", "topic", "tour", "tutorial", "tux", "undef", "update", "upload",
		"usage", "user", "ver", "version", "video", "watch", "when", "widget", "wiki",
		"word", "xml", "year",
	}
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}()

// IsReservedUserID reports whether id is on the reserved list, ignoring case.
func IsReservedUserID(id string) bool {
	_, ok := reservedUserIDs[strings.ToLower(id)]
	return ok
}

// LooksLikeTwitterUsername reports whether id starts with the Twitter
// namespace prefix in any letter case followed by at least one character.
// Native sign-ups must not claim it.
func LooksLikeTwitterUsername(id string) bool {
	return len(id) > len(TwitterUsernamePrefix) &&
		strings.EqualFold(id[:len(TwitterUsernamePrefix)], TwitterUsernamePrefix)
}
