// Package console 行式控制台交互
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter 读取用户输入的行, 输入结束时返回 io.EOF
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// New 创建 Prompter
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// Out 控制台输出
func (p *Prompter) Out() io.Writer {
	return p.out
}

func (p *Prompter) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *Prompter) Println(args ...any) {
	fmt.Fprintln(p.out, args...)
}

// Ask 显示提示并读取一行, 去掉首尾空白
func (p *Prompter) Ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}
