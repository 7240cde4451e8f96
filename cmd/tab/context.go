package main

import "context"

func withTabIndex(ctx context.Context, i int) context.Context {
	return context.WithValue(ctx, tabKey{}, i)
}

func tabIndex(ctx context.Context) int {
	i, _ := ctx.Value(tabKey{}).(int)
	return i
}
