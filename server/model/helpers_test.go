package model

import "time"

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustKey(k Kind, user UserId, parts ...string) Key {
	key, err := k.Key(user, parts...)
	if err != nil {
		panic(err)
	}
	return key
}
