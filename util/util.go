package util

import (
	"sort"
)

// Sub returns a slice with the elements from arr1 that are absent from arr2.
func Sub(arr1, arr2 []string) []string {
	result := make([]string, 0)
	for _, s := range arr1 {
		exist := false
		for _, s2 := range arr2 {
			if s == s2 {
				exist = true
				break
			}
		}
		if !exist {
			result = append(result, s)
		}
	}
	return result
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
