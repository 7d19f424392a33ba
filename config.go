package kbot

import "golang.org/x/text/encoding/charmap"

// controlPrefix is the single character introducing a user-command word
// in chat, e.g. "," in ",hi".
const controlPrefix = ","

// Option configures a Server via the functional-options pattern.
type Option func(*config)

type config struct {
	address, port      string
	nickname, password string
	channel            string
	ident, realName    string
	logger             Logger
	db                 CredentialStore
	charmap            *charmap.Charmap
}

func defaultConfig() config {
	return config{
		nickname: "kbot",
		ident:    "kbot",
		realName: "kbot",
		logger:   nopLogger{},
		db:       NewMemoryCredentialStore(),
	}
}

func WithAddress(address string) Option {
	return func(c *config) { c.address = address }
}

func WithPort(port string) Option {
	return func(c *config) { c.port = port }
}

func WithNickname(nick string) Option {
	return func(c *config) { c.nickname = nick }
}

func WithPassword(password string) Option {
	return func(c *config) { c.password = password }
}

func WithChannel(channel string) Option {
	return func(c *config) { c.channel = channel }
}

func WithIdent(ident string) Option {
	return func(c *config) { c.ident = ident }
}

func WithRealName(realName string) Option {
	return func(c *config) { c.realName = realName }
}

func WithLogger(logger Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithCredentialStore(db CredentialStore) Option {
	return func(c *config) { c.db = db }
}

func WithCharmap(cm *charmap.Charmap) Option {
	return func(c *config) { c.charmap = cm }
}
