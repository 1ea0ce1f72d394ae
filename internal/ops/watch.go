package ops

import (
	"github.com/fsnotify/fsnotify"
	"github.com/yanun0323/logs"
)

// Watch loads the config and re-resolves it on every file change,
// invoking onChange with each good version. A broken edit is logged and
// the previous configuration stays in effect.
func Watch(path string, onChange func(Loaded)) (Loaded, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return Loaded{}, err
	}
	loaded, err := resolve(v)
	if err != nil {
		return Loaded{}, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := resolve(v)
		if err != nil {
			logs.Warnf("config reload rejected, keeping previous: %v", err)
			return
		}
		logs.Infof("config reloaded from %s", e.Name)
		onChange(next)
	})
	v.WatchConfig()
	return loaded, nil
}
