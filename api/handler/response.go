package handler

// failureMessage 非生产模式下附带原始错误信息
func failureMessage(base string, err error, verbose bool) string {
	if verbose && err != nil {
		return base + ": " + err.Error()
	}
	return base
}
