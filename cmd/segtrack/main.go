// Command segtrack 交互式点提示分割、帧序列跟踪和视频拆帧
package main

func main() {
	Execute()
}
