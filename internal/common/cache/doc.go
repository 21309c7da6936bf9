// Package cache keeps compiled programs in memory so repeated snippets,
// JSON-logic rules and templates are parsed once per process.
//
// It wraps github.com/patrickmn/go-cache with a size ceiling and a
// compile-on-miss helper:
//
//	programs := cache.New(10*time.Minute, 5*time.Minute, 1000)
//	prog, err := programs.GetOrCompile("js:"+src, func() (interface{}, error) {
//		return goja.Compile("", src, true)
//	})
package cache
